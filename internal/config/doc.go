// Package config defines the trader configuration, loaded from YAML
// with environment variable expansion, defaults, and validation.
package config

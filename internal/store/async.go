package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// AsyncConfig holds async writer settings.
type AsyncConfig struct {
	// BufferSize is the initial in-memory buffer capacity.
	BufferSize int

	// FlushInterval is how often buffered records are written out.
	FlushInterval time.Duration

	// WriteTimeout bounds each flush's database work.
	WriteTimeout time.Duration
}

type record struct {
	order *model.Order
	fill  *model.Fill
	snap  *model.MarketSnapshot
	perf  *model.PerformanceSnapshot
}

// Async wraps a Store with an in-memory buffer and a background flush
// goroutine. Saves never block and never fail; flush errors are logged
// and the records dropped, keeping the decision loop independent of
// database health. Reads pass through to the inner store.
type Async struct {
	inner  Store
	cfg    AsyncConfig
	buf    *growable[record]
	logger *slog.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	written int64
	dropped int64
}

// NewAsync wraps the inner store.
func NewAsync(inner Store, cfg AsyncConfig, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Async{
		inner:  inner,
		cfg:    cfg,
		buf:    newGrowable[record](cfg.BufferSize),
		logger: logger,
	}
}

// Start launches the flush goroutine.
func (a *Async) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.flushLoop()

	a.logger.Info("async store started",
		"buffer_size", a.cfg.BufferSize,
		"flush_interval", a.cfg.FlushInterval,
	)
	return nil
}

// Stop flushes what remains and shuts the writer down.
func (a *Async) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("async store stop timed out")
	}

	a.buf.close()
	a.flush()
	return nil
}

// SaveOrder implements Store, buffering the write.
func (a *Async) SaveOrder(ctx context.Context, o model.Order) error {
	a.buf.push(record{order: &o})
	return nil
}

// SaveFill implements Store, buffering the write.
func (a *Async) SaveFill(ctx context.Context, f model.Fill) error {
	a.buf.push(record{fill: &f})
	return nil
}

// SaveSnapshot implements Store, buffering the write.
func (a *Async) SaveSnapshot(ctx context.Context, s model.MarketSnapshot) error {
	a.buf.push(record{snap: &s})
	return nil
}

// SavePerformance implements Store, buffering the write.
func (a *Async) SavePerformance(ctx context.Context, p model.PerformanceSnapshot) error {
	a.buf.push(record{perf: &p})
	return nil
}

// Snapshots implements Store, passing through to the inner store.
func (a *Async) Snapshots(ctx context.Context, ticker string, from, to int64) ([]model.MarketSnapshot, error) {
	return a.inner.Snapshots(ctx, ticker, from, to)
}

// Close closes the inner store. Call Stop first.
func (a *Async) Close() {
	a.inner.Close()
}

// Stats reports how many records were written and dropped.
func (a *Async) Stats() (written, dropped int64) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.written, a.dropped
}

func (a *Async) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.flush()
		}
	}
}

func (a *Async) flush() {
	records := a.buf.drain(0)
	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
	defer cancel()

	var written, dropped int64
	for _, r := range records {
		var err error
		switch {
		case r.order != nil:
			err = a.inner.SaveOrder(ctx, *r.order)
		case r.fill != nil:
			err = a.inner.SaveFill(ctx, *r.fill)
		case r.snap != nil:
			err = a.inner.SaveSnapshot(ctx, *r.snap)
		case r.perf != nil:
			err = a.inner.SavePerformance(ctx, *r.perf)
		}
		if err != nil {
			dropped++
			a.logger.Error("async store write failed", "error", err)
			continue
		}
		written++
	}

	a.statsMu.Lock()
	a.written += written
	a.dropped += dropped
	a.statsMu.Unlock()

	a.logger.Debug("async store flushed", "written", written, "dropped", dropped)
}

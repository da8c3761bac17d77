package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// memStore collects saved records for assertions.
type memStore struct {
	mu     sync.Mutex
	orders []model.Order
	fills  []model.Fill
	snaps  []model.MarketSnapshot
	perfs  []model.PerformanceSnapshot

	failFills bool
}

func (m *memStore) SaveOrder(ctx context.Context, o model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	return nil
}

func (m *memStore) SaveFill(ctx context.Context, f model.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFills {
		return errors.New("db down")
	}
	m.fills = append(m.fills, f)
	return nil
}

func (m *memStore) SaveSnapshot(ctx context.Context, s model.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memStore) SavePerformance(ctx context.Context, p model.PerformanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perfs = append(m.perfs, p)
	return nil
}

func (m *memStore) Snapshots(ctx context.Context, ticker string, from, to int64) ([]model.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MarketSnapshot
	for _, s := range m.snaps {
		if s.Ticker == ticker && s.TS >= from && (to == 0 || s.TS < to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Close() {}

func TestAsyncFlushesOnStop(t *testing.T) {
	ctx := context.Background()
	inner := &memStore{}
	a := NewAsync(inner, AsyncConfig{FlushInterval: time.Hour}, nil)

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a.SaveOrder(ctx, model.Order{LocalID: "o1", Ticker: "T"})
	a.SaveFill(ctx, model.Fill{ID: uuid.New(), Ticker: "T"})
	a.SaveSnapshot(ctx, model.MarketSnapshot{Ticker: "T", TS: 1})
	a.SavePerformance(ctx, model.PerformanceSnapshot{Trades: 1})

	// Nothing flushed yet with the hour-long interval.
	inner.mu.Lock()
	pending := len(inner.orders)
	inner.mu.Unlock()
	if pending != 0 {
		t.Fatalf("orders flushed early: %d", pending)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.orders) != 1 || len(inner.fills) != 1 || len(inner.snaps) != 1 || len(inner.perfs) != 1 {
		t.Errorf("flushed %d/%d/%d/%d records, want 1 each",
			len(inner.orders), len(inner.fills), len(inner.snaps), len(inner.perfs))
	}

	written, dropped := a.Stats()
	if written != 4 || dropped != 0 {
		t.Errorf("stats = %d written %d dropped, want 4/0", written, dropped)
	}
}

func TestAsyncDropsFailedWrites(t *testing.T) {
	ctx := context.Background()
	inner := &memStore{failFills: true}
	a := NewAsync(inner, AsyncConfig{FlushInterval: time.Hour}, nil)
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a.SaveFill(ctx, model.Fill{ID: uuid.New()})
	a.SaveOrder(ctx, model.Order{LocalID: "o1"})

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	written, dropped := a.Stats()
	if written != 1 || dropped != 1 {
		t.Errorf("stats = %d written %d dropped, want 1/1", written, dropped)
	}
}

func TestAsyncSnapshotsPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := &memStore{snaps: []model.MarketSnapshot{
		{Ticker: "T", TS: 1},
		{Ticker: "T", TS: 2},
		{Ticker: "OTHER", TS: 3},
	}}
	a := NewAsync(inner, AsyncConfig{}, nil)

	got, err := a.Snapshots(ctx, "T", 0, 0)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d snapshots, want 2", len(got))
	}
}

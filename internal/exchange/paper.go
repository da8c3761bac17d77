package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/orders"
)

// PaperExecutor is an in-memory Execution venue for dry runs. Orders
// rest until a snapshot fed through OnSnapshot crosses their limit;
// fills then execute at the limit price. Fill ids are deterministic
// functions of the order id and fill sequence.
type PaperExecutor struct {
	mu       sync.Mutex
	orders   map[string]*paperOrder
	byClient map[string]SubmitResult // ClientID idempotency
	books    map[string]model.MarketSnapshot
	fills    []model.Fill
	seq      int64

	fees   fees.Schedule
	now    func() int64
	logger *slog.Logger
}

type paperOrder struct {
	order orders.ExchangeOrder
}

// PaperOption customizes a PaperExecutor.
type PaperOption func(*PaperExecutor)

// WithPaperClock overrides the executor's time source (µs since epoch).
func WithPaperClock(now func() int64) PaperOption {
	return func(p *PaperExecutor) { p.now = now }
}

// WithPaperFees sets the schedule used for simulated fill fees.
func WithPaperFees(s fees.Schedule) PaperOption {
	return func(p *PaperExecutor) { p.fees = s }
}

// NewPaperExecutor creates an empty paper venue.
func NewPaperExecutor(logger *slog.Logger, opts ...PaperOption) *PaperExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PaperExecutor{
		orders:   make(map[string]*paperOrder),
		byClient: make(map[string]SubmitResult),
		books:    make(map[string]model.MarketSnapshot),
		fees:     fees.DefaultSchedule(),
		now:      func() int64 { return time.Now().UnixMicro() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit implements Execution.
func (p *PaperExecutor) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.Price < 1 || req.Price > 99 {
		return SubmitResult{}, &APIError{StatusCode: 400, Message: fmt.Sprintf("price %d out of range", req.Price)}
	}
	if req.Quantity <= 0 {
		return SubmitResult{}, &APIError{StatusCode: 400, Message: "non-positive quantity"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The client id is an idempotency key, as on the live venue: a
	// repeated submit returns the original placement.
	if req.ClientID != "" {
		if res, ok := p.byClient[req.ClientID]; ok {
			return res, nil
		}
	}

	if req.PostOnly {
		if snap, ok := p.books[req.Ticker]; ok && wouldCross(req, snap) {
			return SubmitResult{}, ErrPostOnlyWouldCross
		}
	}

	p.seq++
	exchangeID := fmt.Sprintf("paper-%d", p.seq)
	p.orders[exchangeID] = &paperOrder{order: orders.ExchangeOrder{
		ExchangeID: exchangeID,
		ClientID:   req.ClientID,
		Ticker:     req.Ticker,
		Side:       req.Side,
		Action:     req.Action,
		Price:      req.Price,
		Quantity:   req.Quantity,
		State:      model.OrderOpen,
	}}

	p.logger.Debug("paper order resting",
		"exchange_id", exchangeID, "ticker", req.Ticker,
		"side", req.Side, "price", req.Price, "quantity", req.Quantity)

	res := SubmitResult{ExchangeID: exchangeID, State: model.OrderOpen}
	if req.ClientID != "" {
		p.byClient[req.ClientID] = res
	}
	return res, nil
}

// Cancel implements Execution. Cancelling an order already off the book
// succeeds, matching the live venue.
func (p *PaperExecutor) Cancel(ctx context.Context, exchangeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, exchangeID)
	return nil
}

// ListOpenOrders implements Execution.
func (p *PaperExecutor) ListOpenOrders(ctx context.Context) ([]orders.ExchangeOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []orders.ExchangeOrder
	for _, po := range p.orders {
		out = append(out, po.order)
	}
	return out, nil
}

// ListFills implements Execution.
func (p *PaperExecutor) ListFills(ctx context.Context, since int64) ([]model.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Fill
	for _, f := range p.fills {
		if f.TS >= since {
			out = append(out, f)
		}
	}
	return out, nil
}

// OnSnapshot marks the market state and executes any resting order the
// new book crosses. Orders fill in full at their limit price.
func (p *PaperExecutor) OnSnapshot(snap model.MarketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.books[snap.Ticker] = snap

	for id, po := range p.orders {
		o := po.order
		if o.Ticker != snap.Ticker || !crosses(o, snap) {
			continue
		}

		fill := model.Fill{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", id, o.Quantity))),
			OrderID:  id,
			Ticker:   o.Ticker,
			Side:     o.Side,
			Price:    o.Price,
			Quantity: o.Quantity,
			Fee:      p.fees.Total(o.Price, o.Quantity),
			TS:       p.now(),
		}
		p.fills = append(p.fills, fill)
		delete(p.orders, id)

		p.logger.Debug("paper fill",
			"exchange_id", id, "ticker", o.Ticker, "price", o.Price, "quantity", o.Quantity)
	}
}

// wouldCross reports whether a new order would take liquidity from the
// current book.
func wouldCross(req SubmitRequest, snap model.MarketSnapshot) bool {
	if req.Action == model.ActionBuy {
		ask := snap.Ask(req.Side)
		return ask > 0 && req.Price >= ask
	}
	bid := snap.Bid(req.Side)
	return bid > 0 && req.Price <= bid
}

// crosses reports whether the book has moved through a resting order's
// limit.
func crosses(o orders.ExchangeOrder, snap model.MarketSnapshot) bool {
	if o.Action == model.ActionBuy {
		ask := snap.Ask(o.Side)
		return ask > 0 && ask <= o.Price
	}
	bid := snap.Bid(o.Side)
	return bid > 0 && bid >= o.Price
}

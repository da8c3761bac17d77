package exchange

import (
	"context"
	"errors"

	"github.com/rickgao/kalshi-trader/internal/book"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/orders"
)

// MarketData fetches raw orderbooks for normalization.
type MarketData interface {
	// FetchBook returns the current raw book for a ticker. The result is
	// unvalidated; callers run it through the normalizer.
	FetchBook(ctx context.Context, ticker string) (book.RawBook, error)
}

// SubmitRequest is one order placement. ClientID is the caller's local
// order id; the venue must treat it as an idempotency key.
type SubmitRequest struct {
	ClientID string
	Ticker   string
	Side     model.Side
	Action   model.Action
	Price    int // cents, 1-99
	Quantity int
	PostOnly bool
}

// SubmitResult is the venue's acknowledgement of a placement.
type SubmitResult struct {
	ExchangeID string
	State      model.OrderState
}

// Execution is the order venue the lifecycle manager acts against.
type Execution interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	Cancel(ctx context.Context, exchangeID string) error

	// ListOpenOrders returns every order the venue still considers
	// resting, for reconciliation.
	ListOpenOrders(ctx context.Context) ([]orders.ExchangeOrder, error)

	// ListFills returns fills at or after the given time (µs since
	// epoch); 0 means all.
	ListFills(ctx context.Context, since int64) ([]model.Fill, error)
}

// ErrPostOnlyWouldCross reports a post-only order the venue refused
// because it would have taken liquidity.
var ErrPostOnlyWouldCross = errors.New("exchange: post-only order would cross")

// IsDefinitiveReject reports whether the error means the venue
// definitely refused the order, as opposed to an outcome the caller
// cannot know (timeouts, 5xx after retries). Unknown outcomes must stay
// pending until reconciliation.
func IsDefinitiveReject(err error) bool {
	if errors.Is(err, ErrPostOnlyWouldCross) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

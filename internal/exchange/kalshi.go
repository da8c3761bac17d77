package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/book"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/orders"
)

// Wire types for the trade API.

type orderbookResponse struct {
	Orderbook struct {
		Yes [][]int `json:"yes"`
		No  [][]int `json:"no"`
	} `json:"orderbook"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
	PostOnly      bool   `json:"post_only,omitempty"`
}

type apiOrder struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	YesPrice      int    `json:"yes_price"`
	NoPrice       int    `json:"no_price"`
	Status        string `json:"status"`
	InitialCount  int    `json:"initial_count"`
	FillCount     int    `json:"fill_count"`
}

type createOrderResponse struct {
	Order apiOrder `json:"order"`
}

type ordersResponse struct {
	Orders []apiOrder `json:"orders"`
	Cursor string     `json:"cursor"`
}

type apiFill struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	YesPrice    int    `json:"yes_price"`
	NoPrice     int    `json:"no_price"`
	Count       int    `json:"count"`
	CreatedTime string `json:"created_time"`
}

type fillsResponse struct {
	Fills  []apiFill `json:"fills"`
	Cursor string    `json:"cursor"`
}

// FetchBook implements MarketData. Kalshi reports each side's resting
// bids only; ask legs are left empty for the normalizer to derive.
func (c *Client) FetchBook(ctx context.Context, ticker string) (book.RawBook, error) {
	var resp orderbookResponse
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", nil, &resp); err != nil {
		return book.RawBook{}, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}

	return book.RawBook{
		Ticker:  ticker,
		TS:      time.Now().UnixMicro(),
		YesBids: toLevels(resp.Orderbook.Yes),
		NoBids:  toLevels(resp.Orderbook.No),
	}, nil
}

func toLevels(raw [][]int) []book.PriceLevel {
	var levels []book.PriceLevel
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, book.PriceLevel{Price: pair[0], Size: pair[1]})
	}
	return levels
}

// Submit implements Execution. The client order id makes retries safe:
// the exchange deduplicates placements on it.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	payload := createOrderRequest{
		Ticker:        req.Ticker,
		ClientOrderID: req.ClientID,
		Side:          string(req.Side),
		Action:        string(req.Action),
		Type:          "limit",
		Count:         req.Quantity,
		PostOnly:      req.PostOnly,
	}
	if req.Side == model.SideYes {
		payload.YesPrice = req.Price
	} else {
		payload.NoPrice = req.Price
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/portfolio/orders", payload, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("create order: %w", err)
	}

	return SubmitResult{
		ExchangeID: resp.Order.OrderID,
		State:      orderState(resp.Order.Status),
	}, nil
}

// Cancel implements Execution. A 404 means the order is already off the
// book, which cancellation treats as success.
func (c *Client) Cancel(ctx context.Context, exchangeID string) error {
	_, err := c.doWithRetry(ctx, "DELETE", "/portfolio/orders/"+exchangeID, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", exchangeID, err)
	}
	return nil
}

// ListOpenOrders implements Execution, paginating through every resting
// order.
func (c *Client) ListOpenOrders(ctx context.Context) ([]orders.ExchangeOrder, error) {
	var out []orders.ExchangeOrder
	query := url.Values{}
	query.Set("status", "resting")

	for {
		var resp ordersResponse
		if err := c.get(ctx, "/portfolio/orders", query, &resp); err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		for _, o := range resp.Orders {
			out = append(out, toExchangeOrder(o))
		}
		if resp.Cursor == "" {
			return out, nil
		}
		query.Set("cursor", resp.Cursor)
	}
}

func toExchangeOrder(o apiOrder) orders.ExchangeOrder {
	side := model.Side(o.Side)
	price := o.YesPrice
	if side == model.SideNo {
		price = o.NoPrice
	}
	return orders.ExchangeOrder{
		ExchangeID: o.OrderID,
		ClientID:   o.ClientOrderID,
		Ticker:     o.Ticker,
		Side:       side,
		Action:     model.Action(o.Action),
		Price:      price,
		Quantity:   o.InitialCount,
		Filled:     o.FillCount,
		State:      orderState(o.Status),
	}
}

func orderState(status string) model.OrderState {
	switch status {
	case "resting", "open":
		return model.OrderOpen
	case "executed", "filled":
		return model.OrderFilled
	case "canceled", "cancelled":
		return model.OrderCancelled
	case "rejected":
		return model.OrderRejected
	case "partially_filled":
		return model.OrderPartiallyFilled
	default:
		return ""
	}
}

// ListFills implements Execution. Fees are stamped from the configured
// schedule since the fills endpoint does not report them.
func (c *Client) ListFills(ctx context.Context, since int64) ([]model.Fill, error) {
	var out []model.Fill
	query := url.Values{}
	if since > 0 {
		query.Set("min_ts", strconv.FormatInt(since/1_000_000, 10))
	}

	for {
		var resp fillsResponse
		if err := c.get(ctx, "/portfolio/fills", query, &resp); err != nil {
			return nil, fmt.Errorf("list fills: %w", err)
		}
		for _, f := range resp.Fills {
			out = append(out, c.toFill(f))
		}
		if resp.Cursor == "" {
			return out, nil
		}
		query.Set("cursor", resp.Cursor)
	}
}

func (c *Client) toFill(f apiFill) model.Fill {
	side := model.Side(f.Side)
	price := f.YesPrice
	if side == model.SideNo {
		price = f.NoPrice
	}

	id, err := uuid.Parse(f.TradeID)
	if err != nil {
		// Non-uuid trade ids still dedup deterministically.
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(f.TradeID))
	}

	var ts int64
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		ts = t.UnixMicro()
	}

	return model.Fill{
		ID:       id,
		OrderID:  f.OrderID,
		Ticker:   f.Ticker,
		Side:     side,
		Price:    price,
		Quantity: f.Count,
		Fee:      c.fees.Total(price, f.Count),
		TS:       ts,
	}
}

package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/model"
)

func TestFetchBookMapsBidsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/TEST-MARKET/orderbook" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"orderbook":{"yes":[[40,100],[42,50]],"no":[[55,30]]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	raw, err := c.FetchBook(context.Background(), "TEST-MARKET")
	if err != nil {
		t.Fatalf("FetchBook: %v", err)
	}

	if len(raw.YesBids) != 2 || raw.YesBids[1].Price != 42 || raw.YesBids[1].Size != 50 {
		t.Errorf("YesBids = %+v", raw.YesBids)
	}
	if len(raw.NoBids) != 1 || raw.NoBids[0].Price != 55 {
		t.Errorf("NoBids = %+v", raw.NoBids)
	}
	if raw.YesAsks != nil || raw.NoAsks != nil {
		t.Error("ask legs should be left for the normalizer to derive")
	}
}

func TestSubmitSendsLimitOrder(t *testing.T) {
	var got createOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/portfolio/orders" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Write([]byte(`{"order":{"order_id":"EX-1","status":"resting"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	res, err := c.Submit(context.Background(), SubmitRequest{
		ClientID: "local-1",
		Ticker:   "TEST-MARKET",
		Side:     model.SideYes,
		Action:   model.ActionBuy,
		Price:    42,
		Quantity: 10,
		PostOnly: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.ExchangeID != "EX-1" || res.State != model.OrderOpen {
		t.Errorf("result = %+v", res)
	}
	if got.ClientOrderID != "local-1" || got.Type != "limit" || got.YesPrice != 42 || got.NoPrice != 0 {
		t.Errorf("request = %+v", got)
	}
	if !got.PostOnly || got.Count != 10 {
		t.Errorf("request = %+v", got)
	}
}

func TestRetryOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"orderbook":{"yes":[],"no":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, WithRetries(3, time.Millisecond))
	if _, err := c.FetchBook(context.Background(), "TEST-MARKET"); err != nil {
		t.Fatalf("FetchBook: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, WithRetries(3, time.Millisecond))
	_, err := c.Submit(context.Background(), SubmitRequest{Ticker: "T", Side: model.SideYes, Price: 42, Quantity: 1})
	if err == nil {
		t.Fatal("want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !IsDefinitiveReject(err) {
		t.Errorf("IsDefinitiveReject(%v) = false, want true", err)
	}
}

func TestServerErrorIsNotDefinitive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, WithRetries(1, time.Millisecond))
	_, err := c.Submit(context.Background(), SubmitRequest{Ticker: "T", Side: model.SideYes, Price: 42, Quantity: 1})
	if err == nil {
		t.Fatal("want error")
	}
	if IsDefinitiveReject(err) {
		t.Errorf("IsDefinitiveReject(%v) = true, want false: outcome is unknown", err)
	}
}

func TestCancelTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if err := c.Cancel(context.Background(), "EX-GONE"); err != nil {
		t.Errorf("Cancel = %v, want nil for an order already off the book", err)
	}
}

func TestListFillsPaginatesAndStampsFees(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			w.Write([]byte(`{"fills":[{"trade_id":"0f2c3cc9-7a35-4c55-8b5e-1f75f1b9b6a5","order_id":"EX-1","ticker":"TEST-MARKET","side":"yes","yes_price":42,"count":10,"created_time":"2026-08-28T12:00:00Z"}],"cursor":"next"}`))
			return
		}
		if got := r.URL.Query().Get("cursor"); got != "next" {
			t.Errorf("cursor = %q", got)
		}
		w.Write([]byte(`{"fills":[{"trade_id":"not-a-uuid","order_id":"EX-2","ticker":"TEST-MARKET","side":"no","no_price":30,"count":5}],"cursor":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, WithFees(fees.Schedule{Kind: fees.KindTaker, TakerRate: 0.07}))
	fills, err := c.ListFills(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListFills: %v", err)
	}

	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}
	if fills[0].Price != 42 || fills[0].Quantity != 10 {
		t.Errorf("fills[0] = %+v", fills[0])
	}
	// 0.07 * 42 * 10 = 29.4 cents.
	if diff := fills[0].Fee - 29.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Fee = %v, want 29.4", fills[0].Fee)
	}
	if fills[0].TS == 0 {
		t.Error("TS not parsed from created_time")
	}
	// NO fills take the no_price; odd trade ids still yield stable ids.
	if fills[1].Price != 30 {
		t.Errorf("fills[1].Price = %d, want 30", fills[1].Price)
	}
	if fills[1].ID == uuid.Nil {
		t.Error("fills[1].ID is zero")
	}
}

func TestListOpenOrdersMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "resting" {
			t.Errorf("status = %q", got)
		}
		w.Write([]byte(`{"orders":[{"order_id":"EX-1","client_order_id":"local-1","ticker":"TEST-MARKET","side":"no","action":"buy","no_price":30,"status":"resting","initial_count":7,"fill_count":2}],"cursor":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	open, err := c.ListOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("ListOpenOrders: %v", err)
	}

	if len(open) != 1 {
		t.Fatalf("got %d orders, want 1", len(open))
	}
	o := open[0]
	if o.ClientID != "local-1" || o.Side != model.SideNo || o.Price != 30 {
		t.Errorf("order = %+v", o)
	}
	if o.Quantity != 7 || o.Filled != 2 || o.State != model.OrderOpen {
		t.Errorf("order = %+v", o)
	}
}

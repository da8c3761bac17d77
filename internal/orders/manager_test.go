package orders

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	var clock int64
	var ids int64
	return NewManager(nil,
		WithClock(func() int64 { clock++; return clock }),
		WithIDSource(func() uuid.UUID {
			ids++
			return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("order-%d", ids)))
		}),
	)
}

func approvedDecision(side model.Side, action model.Action, price, qty int) model.RiskDecision {
	return model.RiskDecision{
		Intent: model.OrderIntent{
			Ticker:     "TEST-MARKET",
			Side:       side,
			Action:     action,
			Price:      price,
			Quantity:   qty,
			StrategyID: "fair_value",
		},
		Outcome:          model.RiskApproved,
		OriginalQuantity: qty,
	}
}

func fillID(n int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("fill-%d", n)))
}

// trackOpen drives an order through track -> pending_submit -> open.
func trackOpen(t *testing.T, m *Manager, dec model.RiskDecision, exchangeID string) model.Order {
	t.Helper()
	o, err := m.Track(dec)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := m.MarkPendingSubmit(o.LocalID); err != nil {
		t.Fatalf("MarkPendingSubmit: %v", err)
	}
	if err := m.HandleAck(o.LocalID, exchangeID); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}
	got, _ := m.Order(o.LocalID)
	return got
}

func TestTrackRejectsUnapprovedDecision(t *testing.T) {
	m := newTestManager(t)
	dec := approvedDecision(model.SideYes, model.ActionBuy, 42, 10)
	dec.Outcome = model.RiskRejected

	if _, err := m.Track(dec); err == nil {
		t.Error("Track accepted a rejected decision")
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	if o.State != model.OrderOpen {
		t.Fatalf("State = %s, want open", o.State)
	}
	if o.ExchangeID != "EX-1" {
		t.Errorf("ExchangeID = %q, want EX-1", o.ExchangeID)
	}
	if m.OpenOrderCount("TEST-MARKET") != 1 {
		t.Errorf("OpenOrderCount = %d, want 1", m.OpenOrderCount("TEST-MARKET"))
	}

	applied, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-1", Ticker: "TEST-MARKET", Side: model.SideYes, Price: 42, Quantity: 4, Fee: 1.2})
	if err != nil || !applied {
		t.Fatalf("ApplyFill = %v, %v", applied, err)
	}
	got, _ := m.Order(o.LocalID)
	if got.State != model.OrderPartiallyFilled || got.Remaining() != 6 {
		t.Fatalf("after partial: state=%s remaining=%d, want partially_filled/6", got.State, got.Remaining())
	}

	if _, err := m.ApplyFill(model.Fill{ID: fillID(2), OrderID: "EX-1", Ticker: "TEST-MARKET", Side: model.SideYes, Price: 42, Quantity: 6, Fee: 1.8}); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	got, _ = m.Order(o.LocalID)
	if got.State != model.OrderFilled || got.Remaining() != 0 {
		t.Fatalf("after full: state=%s remaining=%d, want filled/0", got.State, got.Remaining())
	}
	if m.OpenOrderCount("TEST-MARKET") != 0 {
		t.Errorf("OpenOrderCount = %d after terminal, want 0", m.OpenOrderCount("TEST-MARKET"))
	}

	pos := m.Position("TEST-MARKET")
	if pos.Net != 10 || pos.AvgCost != 42 {
		t.Errorf("position = net %d avg %.1f, want 10 @ 42", pos.Net, pos.AvgCost)
	}
	if math.Abs(pos.FeesPaid-3.0) > 1e-9 {
		t.Errorf("FeesPaid = %v, want 3.0", pos.FeesPaid)
	}
}

func TestDuplicateFillIgnored(t *testing.T) {
	m := newTestManager(t)
	trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	fill := model.Fill{ID: fillID(1), OrderID: "EX-1", Ticker: "TEST-MARKET", Side: model.SideYes, Price: 42, Quantity: 4}
	if applied, err := m.ApplyFill(fill); err != nil || !applied {
		t.Fatalf("first ApplyFill = %v, %v", applied, err)
	}
	if applied, err := m.ApplyFill(fill); err != nil || applied {
		t.Fatalf("duplicate ApplyFill = %v, %v; want false, nil", applied, err)
	}

	pos := m.Position("TEST-MARKET")
	if pos.Net != 4 {
		t.Errorf("Net = %d after duplicate, want 4", pos.Net)
	}
}

func TestOverfillRefused(t *testing.T) {
	m := newTestManager(t)
	trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	_, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-1", Quantity: 11, Price: 42})
	if !errors.Is(err, ErrOverfill) {
		t.Fatalf("err = %v, want ErrOverfill", err)
	}
	if pos := m.Position("TEST-MARKET"); pos.Net != 0 {
		t.Errorf("Net = %d after refused fill, want 0", pos.Net)
	}
}

func TestTerminalStateIsFinal(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 5), "EX-1")

	if _, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-1", Price: 42, Quantity: 5}); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	if err := m.HandleCancel(o.LocalID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("HandleCancel on filled = %v, want ErrTerminalState", err)
	}
	if err := m.HandleReject(o.LocalID, "late"); !errors.Is(err, ErrTerminalState) {
		t.Errorf("HandleReject on filled = %v, want ErrTerminalState", err)
	}
	if got, _ := m.Order(o.LocalID); got.State != model.OrderFilled {
		t.Errorf("State = %s, want filled unchanged", got.State)
	}
}

func TestLateFillAfterCancelCountsWithoutReviving(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	if err := m.HandleCancel(o.LocalID); err != nil {
		t.Fatalf("HandleCancel: %v", err)
	}

	applied, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-1", Price: 42, Quantity: 3})
	if err != nil || !applied {
		t.Fatalf("late fill = %v, %v", applied, err)
	}
	got, _ := m.Order(o.LocalID)
	if got.State != model.OrderCancelled {
		t.Errorf("State = %s, want cancelled to stick", got.State)
	}
	if pos := m.Position("TEST-MARKET"); pos.Net != 3 {
		t.Errorf("Net = %d, want the late fill counted", pos.Net)
	}
}

func TestFillBeforeAckTransitionsThroughPending(t *testing.T) {
	m := newTestManager(t)
	o, err := m.Track(approvedDecision(model.SideYes, model.ActionBuy, 42, 10))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := m.MarkPendingSubmit(o.LocalID); err != nil {
		t.Fatalf("MarkPendingSubmit: %v", err)
	}

	// The exchange echoes our client id on the fill before the ack lands.
	applied, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: o.LocalID, Price: 42, Quantity: 4})
	if err != nil || !applied {
		t.Fatalf("fill before ack = %v, %v", applied, err)
	}
	if got, _ := m.Order(o.LocalID); got.State != model.OrderPartiallyFilled {
		t.Fatalf("State = %s, want partially_filled", got.State)
	}

	if err := m.HandleAck(o.LocalID, "EX-1"); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}
	if got, _ := m.Order(o.LocalID); got.State != model.OrderPartiallyFilled {
		t.Errorf("State = %s after late ack, want partially_filled kept", got.State)
	}
}

func TestPositionReduceAndFlip(t *testing.T) {
	m := newTestManager(t)

	// Long 10 YES at 42.
	trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")
	if _, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-1", Price: 42, Quantity: 10}); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	// Buying NO at 52 mirrors selling YES at 48: closes 10 at +6c each
	// and opens 5 short at 48.
	trackOpen(t, m, approvedDecision(model.SideNo, model.ActionBuy, 52, 15), "EX-2")
	if _, err := m.ApplyFill(model.Fill{ID: fillID(2), OrderID: "EX-2", Price: 52, Quantity: 15}); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	pos := m.Position("TEST-MARKET")
	if pos.Net != -5 {
		t.Errorf("Net = %d, want -5", pos.Net)
	}
	if math.Abs(pos.RealizedPnL-60) > 1e-9 {
		t.Errorf("RealizedPnL = %v, want 60", pos.RealizedPnL)
	}
	if math.Abs(pos.AvgCost-48) > 1e-9 {
		t.Errorf("AvgCost = %v, want 48", pos.AvgCost)
	}
}

func TestUnknownFillIsAnError(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "GHOST", Price: 42, Quantity: 1})
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("err = %v, want ErrUnknownOrder", err)
	}
}

func TestReconcileResolvesUnlistedPendingSubmit(t *testing.T) {
	m := newTestManager(t)
	o, _ := m.Track(approvedDecision(model.SideYes, model.ActionBuy, 42, 10))
	if err := m.MarkPendingSubmit(o.LocalID); err != nil {
		t.Fatalf("MarkPendingSubmit: %v", err)
	}

	rep := m.Reconcile(nil, nil)

	if rep.Resolved != 1 {
		t.Fatalf("Resolved = %d, want 1", rep.Resolved)
	}
	if got, _ := m.Order(o.LocalID); got.State != model.OrderRejected {
		t.Errorf("State = %s, want rejected for a submit that never landed", got.State)
	}
}

func TestReconcileResolvesUnlistedOpenOrder(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	// The exchange no longer lists it; its fills arrive with the pass
	// and account for the full quantity.
	rep := m.Reconcile(nil, []model.Fill{
		{ID: fillID(1), OrderID: "EX-1", Price: 42, Quantity: 10},
	})

	if rep.Replayed != 1 {
		t.Fatalf("Replayed = %d, want 1", rep.Replayed)
	}
	if got, _ := m.Order(o.LocalID); got.State != model.OrderFilled {
		t.Errorf("State = %s, want filled", got.State)
	}

	// Partially filled and gone from the book resolves to cancelled.
	o2 := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 40, 10), "EX-2")
	m.Reconcile(nil, []model.Fill{
		{ID: fillID(2), OrderID: "EX-2", Price: 40, Quantity: 3},
	})
	if got, _ := m.Order(o2.LocalID); got.State != model.OrderCancelled {
		t.Errorf("State = %s, want cancelled", got.State)
	}
}

func TestReconcileAdoptsUnknownOrder(t *testing.T) {
	m := newTestManager(t)

	rep := m.Reconcile([]ExchangeOrder{{
		ExchangeID: "EX-9",
		Ticker:     "TEST-MARKET",
		Side:       model.SideYes,
		Action:     model.ActionBuy,
		Price:      30,
		Quantity:   7,
		State:      model.OrderOpen,
	}}, nil)

	if rep.Adopted != 1 {
		t.Fatalf("Adopted = %d, want 1", rep.Adopted)
	}
	if m.OpenOrderCount("TEST-MARKET") != 1 {
		t.Errorf("OpenOrderCount = %d, want the adopted order tracked", m.OpenOrderCount("TEST-MARKET"))
	}

	// Fills against the adopted order flow through the normal path.
	if applied, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-9", Price: 30, Quantity: 7}); err != nil || !applied {
		t.Fatalf("fill on adopted order = %v, %v", applied, err)
	}
}

func TestReconcileKeepsListedOrdersOpen(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	rep := m.Reconcile([]ExchangeOrder{{
		ExchangeID: "EX-1",
		ClientID:   o.LocalID,
		Ticker:     "TEST-MARKET",
		Quantity:   10,
		State:      model.OrderOpen,
	}}, nil)

	if rep.Resolved != 0 || rep.Adopted != 0 {
		t.Fatalf("report = %+v, want a no-op pass", rep)
	}
	if got, _ := m.Order(o.LocalID); got.State != model.OrderOpen {
		t.Errorf("State = %s, want open unchanged", got.State)
	}
}

func TestReconcileFlagsFillCountMismatch(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	rep := m.Reconcile([]ExchangeOrder{{
		ExchangeID: "EX-1",
		ClientID:   o.LocalID,
		Quantity:   10,
		Filled:     4, // no fills supplied to account for these
		State:      model.OrderPartiallyFilled,
	}}, nil)

	if rep.Mismatches != 1 {
		t.Errorf("Mismatches = %d, want 1", rep.Mismatches)
	}
	// Position stays fill-derived.
	if pos := m.Position("TEST-MARKET"); pos.Net != 0 {
		t.Errorf("Net = %d, want 0 without real fills", pos.Net)
	}
}

func TestOpenOrderTotalSpansTickers(t *testing.T) {
	m := newTestManager(t)
	trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	other := approvedDecision(model.SideNo, model.ActionBuy, 58, 5)
	other.Intent.Ticker = "OTHER-MARKET"
	o2 := trackOpen(t, m, other, "EX-2")

	if got := m.OpenOrderTotal(); got != 2 {
		t.Fatalf("OpenOrderTotal = %d, want 2 across tickers", got)
	}
	if got := m.OpenOrderCount("TEST-MARKET"); got != 1 {
		t.Errorf("OpenOrderCount = %d, want 1", got)
	}

	if err := m.HandleCancel(o2.LocalID); err != nil {
		t.Fatalf("HandleCancel: %v", err)
	}
	if got := m.OpenOrderTotal(); got != 1 {
		t.Errorf("OpenOrderTotal = %d after cancel, want 1", got)
	}
}

func TestOrderByExchangeIDIncludesTerminal(t *testing.T) {
	m := newTestManager(t)
	o := trackOpen(t, m, approvedDecision(model.SideYes, model.ActionBuy, 42, 10), "EX-1")

	if _, err := m.ApplyFill(model.Fill{ID: fillID(1), OrderID: "EX-1", Ticker: "TEST-MARKET", Side: model.SideYes, Price: 42, Quantity: 10}); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	got, ok := m.OrderByExchangeID("EX-1")
	if !ok {
		t.Fatal("OrderByExchangeID missed a filled order")
	}
	if got.LocalID != o.LocalID || got.State != model.OrderFilled || got.Filled != 10 {
		t.Errorf("order = %+v, want the filled revision", got)
	}

	if _, ok := m.OrderByExchangeID("EX-404"); ok {
		t.Error("OrderByExchangeID returned an order for an unknown id")
	}
}

package orders

import "github.com/rickgao/kalshi-trader/internal/model"

// ExchangeOrder is the exchange's view of one order, as reported by the
// open-orders endpoint. ClientID carries our local id when the exchange
// echoes it back.
type ExchangeOrder struct {
	ExchangeID string
	ClientID   string
	Ticker     string
	Side       model.Side
	Action     model.Action
	Price      int
	Quantity   int
	Filled     int
	State      model.OrderState
}

// ReconcileReport summarizes what one reconciliation pass changed.
type ReconcileReport struct {
	Adopted    int // exchange orders with no local record
	Replayed   int // fills newly applied during the pass
	Resolved   int // local orders moved to a terminal state
	Mismatches int // fill-count disagreements left after replay
}

// Reconcile aligns local state with the exchange. The exchange is
// authoritative for order state and fill history; the local record is
// authoritative for attribution. Orders the exchange reports that we do
// not know are adopted, never dropped. Local non-terminal orders the
// exchange no longer lists are resolved: filled if their fills account
// for the full quantity, rejected if they never left pending_submit
// untouched, cancelled otherwise.
func (m *Manager) Reconcile(open []ExchangeOrder, fills []model.Fill) ReconcileReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rep ReconcileReport
	listed := make(map[string]bool, len(open))

	for _, ext := range open {
		o := m.findLocked(ext)
		if o == nil {
			o = m.adoptLocked(ext)
			rep.Adopted++
		} else {
			m.adoptExchangeID(o, ext.ExchangeID)
		}
		listed[o.LocalID] = true
	}

	for _, fill := range fills {
		applied, err := m.applyFillLocked(fill)
		if err != nil {
			m.logger.Error("reconcile: fill not applicable", "fill_id", fill.ID, "order_id", fill.OrderID, "error", err)
			continue
		}
		if applied {
			rep.Replayed++
		}
	}

	for _, ext := range open {
		o := m.findLocked(ext)
		if o == nil || o.State.Terminal() {
			continue
		}
		if ext.State != "" && ext.State != o.State {
			m.logger.Info("reconcile: adopting exchange state",
				"local_id", o.LocalID, "from", o.State, "to", ext.State)
			m.transition(o, ext.State)
			if ext.State.Terminal() {
				rep.Resolved++
			}
		}
		if ext.Filled > o.Filled {
			// Fills the exchange counts that we never received, even
			// after replay. The position stays fill-derived; flag it.
			m.logger.Error("reconcile: fill count mismatch",
				"local_id", o.LocalID, "local_filled", o.Filled, "exchange_filled", ext.Filled)
			rep.Mismatches++
		}
	}

	for _, o := range m.orders {
		if o.State.Terminal() || listed[o.LocalID] {
			continue
		}
		switch {
		case o.Remaining() == 0:
			m.transition(o, model.OrderFilled)
		case o.State == model.OrderPendingSubmit && o.Filled == 0:
			// The submit of unknown outcome never reached the book.
			m.transition(o, model.OrderRejected)
		default:
			m.transition(o, model.OrderCancelled)
		}
		m.logger.Info("reconcile: resolved unlisted order",
			"local_id", o.LocalID, "ticker", o.Ticker, "state", o.State, "filled", o.Filled)
		rep.Resolved++
	}

	return rep
}

func (m *Manager) findLocked(ext ExchangeOrder) *model.Order {
	if ext.ClientID != "" {
		if o, ok := m.orders[ext.ClientID]; ok {
			return o
		}
	}
	if localID, ok := m.byExchange[ext.ExchangeID]; ok {
		return m.orders[localID]
	}
	return nil
}

// adoptLocked creates a local record for an exchange order we have no
// memory of, attributed to no strategy.
func (m *Manager) adoptLocked(ext ExchangeOrder) *model.Order {
	m.seq++
	now := m.now()
	localID := ext.ClientID
	if localID == "" {
		localID = m.newID().String()
	}
	state := ext.State
	if state == "" {
		state = model.OrderOpen
	}
	o := &model.Order{
		LocalID:    localID,
		ExchangeID: ext.ExchangeID,
		Seq:        m.seq,
		Ticker:     ext.Ticker,
		Side:       ext.Side,
		Action:     ext.Action,
		Price:      ext.Price,
		Quantity:   ext.Quantity,
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.orders[localID] = o
	if ext.ExchangeID != "" {
		m.byExchange[ext.ExchangeID] = localID
	}
	m.logger.Warn("reconcile: adopted unknown exchange order",
		"local_id", localID, "exchange_id", ext.ExchangeID, "ticker", ext.Ticker)
	return o
}

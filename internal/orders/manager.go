package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/model"
)

var (
	// ErrUnknownOrder is returned for events that reference no tracked
	// order.
	ErrUnknownOrder = errors.New("orders: unknown order")

	// ErrTerminalState is returned when a transition is requested on an
	// order already in a terminal state.
	ErrTerminalState = errors.New("orders: order in terminal state")

	// ErrOverfill is returned when a fill would exceed an order's
	// original quantity.
	ErrOverfill = errors.New("orders: fill exceeds order quantity")
)

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source. Times are µs since
// epoch.
func WithClock(now func() int64) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDSource overrides local order id generation.
func WithIDSource(newID func() uuid.UUID) Option {
	return func(m *Manager) { m.newID = newID }
}

// Manager is the order lifecycle manager. All methods are safe for
// concurrent use; state changes are serialized under one lock so a fill
// and its position update are observed atomically.
type Manager struct {
	mu         sync.Mutex
	orders     map[string]*model.Order // by local id
	byExchange map[string]string       // exchange id -> local id
	seenFills  map[uuid.UUID]struct{}
	positions  map[string]*model.Position
	seq        int64

	now    func() int64
	newID  func() uuid.UUID
	logger *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		orders:     make(map[string]*model.Order),
		byExchange: make(map[string]string),
		seenFills:  make(map[uuid.UUID]struct{}),
		positions:  make(map[string]*model.Position),
		now:        func() int64 { return time.Now().UnixMicro() },
		newID:      uuid.New,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Track registers an approved decision as a new order in the created
// state and returns the record. The local id doubles as the client order
// id sent to the exchange.
func (m *Manager) Track(dec model.RiskDecision) (model.Order, error) {
	if !dec.Approved() {
		return model.Order{}, fmt.Errorf("orders: cannot track %s decision", dec.Outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	now := m.now()
	o := &model.Order{
		LocalID:    m.newID().String(),
		Seq:        m.seq,
		Ticker:     dec.Intent.Ticker,
		Side:       dec.Intent.Side,
		Action:     dec.Intent.Action,
		Price:      dec.Intent.Price,
		Quantity:   dec.Intent.Quantity,
		State:      model.OrderCreated,
		StrategyID: dec.Intent.StrategyID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.orders[o.LocalID] = o

	m.logger.Info("order tracked",
		"local_id", o.LocalID,
		"ticker", o.Ticker,
		"side", o.Side,
		"action", o.Action,
		"price", o.Price,
		"quantity", o.Quantity,
		"strategy", o.StrategyID,
	)
	return *o, nil
}

// MarkPendingSubmit moves a created order to pending_submit just before
// the submit call goes out. An order stuck in this state after a submit
// of unknown outcome stays there until reconciliation resolves it.
func (m *Manager) MarkPendingSubmit(localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.get(localID)
	if err != nil {
		return err
	}
	if o.State != model.OrderCreated {
		return fmt.Errorf("orders: cannot submit from state %s", o.State)
	}
	m.transition(o, model.OrderPendingSubmit)
	return nil
}

// HandleAck records the exchange's acknowledgement: the exchange id is
// merged into the existing record and the order opens.
func (m *Manager) HandleAck(localID, exchangeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.get(localID)
	if err != nil {
		return err
	}
	if o.State.Terminal() {
		return ErrTerminalState
	}
	m.adoptExchangeID(o, exchangeID)
	// A fill may have been observed before the ack arrived.
	if o.State == model.OrderPendingSubmit {
		if o.Filled > 0 {
			m.transition(o, model.OrderPartiallyFilled)
		} else {
			m.transition(o, model.OrderOpen)
		}
	}
	return nil
}

// HandleReject marks a definitively refused submission. Unknown-outcome
// failures (timeouts) must NOT be rejected here; they wait for
// reconciliation.
func (m *Manager) HandleReject(localID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.get(localID)
	if err != nil {
		return err
	}
	if o.State.Terminal() {
		return ErrTerminalState
	}
	m.logger.Warn("order rejected", "local_id", localID, "ticker", o.Ticker, "reason", reason)
	m.transition(o, model.OrderRejected)
	return nil
}

// HandleCancel records a confirmed cancellation. Fills already applied
// stay counted; late fills racing the cancel are still accepted
// afterwards without reviving the order.
func (m *Manager) HandleCancel(localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.get(localID)
	if err != nil {
		return err
	}
	if o.State.Terminal() {
		return ErrTerminalState
	}
	m.transition(o, model.OrderCancelled)
	return nil
}

// ApplyFill applies one execution. Duplicate fill ids are ignored and
// reported as applied=false with no error. The order's fill counter and
// the ticker position update under the same lock acquisition.
func (m *Manager) ApplyFill(fill model.Fill) (applied bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyFillLocked(fill)
}

func (m *Manager) applyFillLocked(fill model.Fill) (bool, error) {
	if _, seen := m.seenFills[fill.ID]; seen {
		return false, nil
	}

	localID, ok := m.byExchange[fill.OrderID]
	if !ok {
		// The exchange may echo the client id as the order id.
		if _, here := m.orders[fill.OrderID]; here {
			localID = fill.OrderID
		} else {
			return false, fmt.Errorf("%w: fill %s for order %s", ErrUnknownOrder, fill.ID, fill.OrderID)
		}
	}
	o := m.orders[localID]

	if fill.Quantity <= 0 {
		return false, fmt.Errorf("orders: fill %s has non-positive quantity %d", fill.ID, fill.Quantity)
	}
	if o.Filled+fill.Quantity > o.Quantity {
		return false, fmt.Errorf("%w: order %s filled %d + %d > %d",
			ErrOverfill, localID, o.Filled, fill.Quantity, o.Quantity)
	}

	m.seenFills[fill.ID] = struct{}{}
	o.Filled += fill.Quantity
	o.UpdatedAt = m.now()

	// Cancelled orders keep their terminal state when a racing fill
	// lands late; everything else follows the fill count.
	if !o.State.Terminal() {
		if o.Remaining() == 0 {
			m.transition(o, model.OrderFilled)
		} else {
			m.transition(o, model.OrderPartiallyFilled)
		}
	}

	m.applyToPosition(o, fill)

	m.logger.Info("fill applied",
		"fill_id", fill.ID,
		"local_id", localID,
		"ticker", o.Ticker,
		"price", fill.Price,
		"quantity", fill.Quantity,
		"remaining", o.Remaining(),
		"state", o.State,
	)
	return true, nil
}

// applyToPosition folds one fill into the ticker's position using
// signed YES-equivalent accounting: a NO contract at p cents is the
// mirror of a YES contract at 100-p.
func (m *Manager) applyToPosition(o *model.Order, fill model.Fill) {
	pos, ok := m.positions[o.Ticker]
	if !ok {
		pos = &model.Position{Ticker: o.Ticker}
		m.positions[o.Ticker] = pos
	}

	delta := fill.Quantity
	price := float64(fill.Price)
	if o.Side == model.SideNo {
		price = 100 - price
	}
	if (o.Side == model.SideYes) != (o.Action == model.ActionBuy) {
		delta = -delta
	}

	switch {
	case pos.Net == 0 || (pos.Net > 0) == (delta > 0):
		// Extending: blend the average cost.
		oldAbs, addAbs := abs(pos.Net), abs(delta)
		pos.AvgCost = (pos.AvgCost*float64(oldAbs) + price*float64(addAbs)) / float64(oldAbs+addAbs)
		pos.Net += delta
	default:
		// Reducing, possibly through zero.
		closed := min(abs(delta), abs(pos.Net))
		if pos.Net > 0 {
			pos.RealizedPnL += float64(closed) * (price - pos.AvgCost)
		} else {
			pos.RealizedPnL += float64(closed) * (pos.AvgCost - price)
		}
		pos.Net += delta
		if pos.Net == 0 {
			pos.AvgCost = 0
		} else if abs(delta) > closed {
			// Flipped: the residue opens at the fill price.
			pos.AvgCost = price
		}
	}

	pos.FeesPaid += fill.Fee
}

// Order returns a copy of the tracked order.
func (m *Manager) Order(localID string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[localID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// OpenOrders returns copies of all non-terminal orders.
func (m *Manager) OpenOrders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// OpenOrderCount counts non-terminal orders for a ticker.
func (m *Manager) OpenOrderCount(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Ticker == ticker && !o.State.Terminal() {
			n++
		}
	}
	return n
}

// OpenOrderTotal counts non-terminal orders across every ticker.
func (m *Manager) OpenOrderTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if !o.State.Terminal() {
			n++
		}
	}
	return n
}

// OrderByExchangeID returns a copy of the order the exchange id maps to,
// terminal or not.
func (m *Manager) OrderByExchangeID(exchangeID string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	localID, ok := m.byExchange[exchangeID]
	if !ok {
		return model.Order{}, false
	}
	return *m.orders[localID], true
}

// Position returns a copy of the ticker's position, zero-valued when the
// ticker has never traded.
func (m *Manager) Position(ticker string) model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[ticker]; ok {
		return *pos
	}
	return model.Position{Ticker: ticker}
}

// Positions returns a copy of every position.
func (m *Manager) Positions() map[string]model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Position, len(m.positions))
	for t, pos := range m.positions {
		out[t] = *pos
	}
	return out
}

func (m *Manager) get(localID string) (*model.Order, error) {
	o, ok := m.orders[localID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, localID)
	}
	return o, nil
}

func (m *Manager) adoptExchangeID(o *model.Order, exchangeID string) {
	if exchangeID == "" || o.ExchangeID == exchangeID {
		return
	}
	if o.ExchangeID != "" {
		delete(m.byExchange, o.ExchangeID)
	}
	o.ExchangeID = exchangeID
	m.byExchange[exchangeID] = o.LocalID
}

func (m *Manager) transition(o *model.Order, to model.OrderState) {
	if o.State == to {
		return
	}
	o.State = to
	o.UpdatedAt = m.now()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/kalshi-trader/internal/book"
	"github.com/rickgao/kalshi-trader/internal/exchange"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/orders"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/store"
	"github.com/rickgao/kalshi-trader/internal/strategy"
)

// Config holds decision loop settings.
type Config struct {
	Tickers           []string
	PollInterval      time.Duration
	ReconcileInterval time.Duration

	// PostOnly keeps every submitted order passive: intents that would
	// cross the current book are skipped, and the venue is asked to
	// refuse crossing placements too.
	PostOnly bool
}

// Status is a point-in-time view of the engine for the control surface.
type Status struct {
	Trading    bool                      `json:"trading"`
	Cycles     int64                     `json:"cycles"`
	OpenOrders int                       `json:"open_orders"`
	Positions  map[string]model.Position `json:"positions"`
	Strategies map[string]bool           `json:"strategies"`
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdStatus
)

type command struct {
	kind  cmdKind
	reply chan Status
}

// Engine drives the trade decision cycle.
type Engine struct {
	cfg        Config
	md         exchange.MarketData
	exec       exchange.Execution
	normalizer book.Normalizer
	coord      *strategy.Coordinator
	riskEng    *risk.Engine
	manager    *orders.Manager
	probs      strategy.Provider
	db         store.Store // nil disables persistence
	logger     *slog.Logger

	commands chan command
	trading  bool
	cycles   int64

	lastFillTS    int64
	lastReconcile time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// snapshotSink is implemented by executors that want the books the loop
// fetches (the paper venue fills resting orders from them).
type snapshotSink interface {
	OnSnapshot(model.MarketSnapshot)
}

// New creates an engine. db may be nil to run without persistence.
func New(
	cfg Config,
	md exchange.MarketData,
	exec exchange.Execution,
	normalizer book.Normalizer,
	coord *strategy.Coordinator,
	riskEng *risk.Engine,
	manager *orders.Manager,
	probs strategy.Provider,
	db store.Store,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		md:         md,
		exec:       exec,
		normalizer: normalizer,
		coord:      coord,
		riskEng:    riskEng,
		manager:    manager,
		probs:      probs,
		db:         db,
		logger:     logger,
		commands:   make(chan command),
		trading:    true,
	}
}

// Start launches the decision loop.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.lastReconcile = time.Now()

	e.wg.Add(1)
	go e.run()

	e.logger.Info("engine started",
		"tickers", e.cfg.Tickers,
		"poll_interval", e.cfg.PollInterval,
		"reconcile_interval", e.cfg.ReconcileInterval,
		"post_only", e.cfg.PostOnly,
	)
	return nil
}

// Stop shuts the loop down and waits for the current cycle to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("stopping engine")

	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped")
	case <-ctx.Done():
		e.logger.Warn("engine stop timed out")
	}
	return nil
}

// Pause halts order submission at the next cycle boundary. Open orders
// and fill processing continue.
func (e *Engine) Pause(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdPause})
}

// Resume re-enables order submission at the next cycle boundary.
func (e *Engine) Resume(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdResume})
}

// Status reports the engine's state, observed between cycles.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	cmd := command{kind: cmdStatus, reply: make(chan Status, 1)}
	if err := e.send(ctx, cmd); err != nil {
		return Status{}, err
	}
	select {
	case st := <-cmd.reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-e.ctx.Done():
		return Status{}, e.ctx.Err()
	}
}

// SetStrategyEnabled toggles a strategy; the change applies from the
// next cycle.
func (e *Engine) SetStrategyEnabled(name string, enabled bool) bool {
	return e.coord.SetEnabled(name, enabled)
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	select {
	case e.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			e.withdraw()
			return
		case cmd := <-e.commands:
			e.handleCommand(cmd)
		case <-ticker.C:
			e.cycle(e.ctx)
		}
	}
}

// withdraw pulls every resting order off the book on shutdown, under its
// own deadline since the loop context is already done.
func (e *Engine) withdraw() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, o := range e.manager.OpenOrders() {
		if o.ExchangeID == "" {
			continue
		}
		if err := e.exec.Cancel(ctx, o.ExchangeID); err != nil {
			e.logger.Warn("shutdown cancel failed", "local_id", o.LocalID, "exchange_id", o.ExchangeID, "error", err)
			continue
		}
		if err := e.manager.HandleCancel(o.LocalID); err != nil {
			continue
		}
		if latest, ok := e.manager.Order(o.LocalID); ok {
			e.saveOrder(ctx, latest)
		}
	}
	e.logger.Info("resting orders withdrawn")
}

func (e *Engine) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdPause:
		if e.trading {
			e.trading = false
			e.logger.Info("trading paused")
		}
	case cmdResume:
		if !e.trading {
			e.trading = true
			e.logger.Info("trading resumed")
		}
	case cmdStatus:
		cmd.reply <- Status{
			Trading:    e.trading,
			Cycles:     e.cycles,
			OpenOrders: len(e.manager.OpenOrders()),
			Positions:  e.manager.Positions(),
			Strategies: e.coord.Status(),
		}
	}
}

// cycle runs one full decision pass.
func (e *Engine) cycle(ctx context.Context) {
	e.cycles++

	snaps := e.fetchSnapshots(ctx)
	e.absorbFills(ctx)
	e.maybeReconcile(ctx)

	if !e.trading || len(snaps) == 0 {
		return
	}

	intents := e.coord.Evaluate(snaps, e.probs)
	e.cancelStaleQuotes(ctx, snaps, intents)

	byTicker := make(map[string]model.MarketSnapshot, len(snaps))
	for _, s := range snaps {
		byTicker[s.Ticker] = s
	}

	for _, intent := range intents {
		if e.hasMatchingQuote(intent) {
			continue
		}
		e.submitIntent(ctx, intent, byTicker[intent.Ticker])
	}
}

// cancelStaleQuotes cancels resting orders on this cycle's tickers that
// no intent re-justifies at the same price. Cancel failures are left for
// reconciliation.
func (e *Engine) cancelStaleQuotes(ctx context.Context, snaps []model.MarketSnapshot, intents []model.OrderIntent) {
	inCycle := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		inCycle[s.Ticker] = true
	}
	desired := make(map[string]bool, len(intents))
	for _, it := range intents {
		desired[quoteKey(it.Ticker, it.Side, it.Action, it.Price)] = true
	}

	for _, o := range e.manager.OpenOrders() {
		if o.ExchangeID == "" || !inCycle[o.Ticker] {
			continue
		}
		if desired[quoteKey(o.Ticker, o.Side, o.Action, o.Price)] {
			continue
		}
		if err := e.exec.Cancel(ctx, o.ExchangeID); err != nil {
			e.logger.Warn("cancel failed", "local_id", o.LocalID, "exchange_id", o.ExchangeID, "error", err)
			continue
		}
		if err := e.manager.HandleCancel(o.LocalID); err != nil {
			// A fill raced the cancel into a terminal state; keep it.
			e.logger.Debug("cancel not recorded", "local_id", o.LocalID, "error", err)
			continue
		}
		e.logger.Info("stale quote cancelled",
			"local_id", o.LocalID, "ticker", o.Ticker, "side", o.Side, "price", o.Price)
		if latest, ok := e.manager.Order(o.LocalID); ok {
			e.saveOrder(ctx, latest)
		}
	}
}

// hasMatchingQuote reports whether an identical order is already working,
// including submits of unknown outcome still pending.
func (e *Engine) hasMatchingQuote(intent model.OrderIntent) bool {
	for _, o := range e.manager.OpenOrders() {
		if o.Ticker == intent.Ticker && o.Side == intent.Side &&
			o.Action == intent.Action && o.Price == intent.Price {
			return true
		}
	}
	return false
}

func quoteKey(ticker string, side model.Side, action model.Action, price int) string {
	return fmt.Sprintf("%s|%s|%s|%d", ticker, side, action, price)
}

// fetchSnapshots pulls and normalizes every configured ticker's book.
// Invalid books are logged and skipped; the cycle proceeds with what
// normalized cleanly.
func (e *Engine) fetchSnapshots(ctx context.Context) []model.MarketSnapshot {
	sink, _ := e.exec.(snapshotSink)

	var snaps []model.MarketSnapshot
	for _, ticker := range e.cfg.Tickers {
		raw, err := e.md.FetchBook(ctx, ticker)
		if err != nil {
			e.logger.Warn("fetch book failed", "ticker", ticker, "error", err)
			continue
		}
		snap, err := e.normalizer.Normalize(raw)
		if err != nil {
			e.logger.Warn("book rejected", "ticker", ticker, "error", err)
			continue
		}
		snaps = append(snaps, snap)

		if sink != nil {
			sink.OnSnapshot(snap)
		}
		e.saveSnapshot(ctx, snap)
	}
	return snaps
}

// absorbFills pulls new fills from the venue and applies them.
func (e *Engine) absorbFills(ctx context.Context) {
	fills, err := e.exec.ListFills(ctx, e.lastFillTS)
	if err != nil {
		e.logger.Warn("list fills failed", "error", err)
		return
	}

	for _, fill := range fills {
		// The cursor moves past every fetched fill; dedup guards replay
		// and reconciliation replays fills for orders adopted later.
		if fill.TS > e.lastFillTS {
			e.lastFillTS = fill.TS
		}
		applied, err := e.manager.ApplyFill(fill)
		if err != nil {
			e.logger.Error("fill not applicable", "fill_id", fill.ID, "order_id", fill.OrderID, "error", err)
			continue
		}
		if applied {
			e.saveFill(ctx, fill)
			e.saveOrderByExchangeID(ctx, fill.OrderID)
		}
	}
}

func (e *Engine) maybeReconcile(ctx context.Context) {
	if time.Since(e.lastReconcile) < e.cfg.ReconcileInterval {
		return
	}
	e.lastReconcile = time.Now()

	open, err := e.exec.ListOpenOrders(ctx)
	if err != nil {
		e.logger.Warn("reconcile skipped: list open orders failed", "error", err)
		return
	}
	fills, err := e.exec.ListFills(ctx, 0)
	if err != nil {
		e.logger.Warn("reconcile skipped: list fills failed", "error", err)
		return
	}

	rep := e.manager.Reconcile(open, fills)
	if rep.Adopted+rep.Replayed+rep.Resolved+rep.Mismatches > 0 {
		e.logger.Info("reconciled",
			"adopted", rep.Adopted,
			"replayed", rep.Replayed,
			"resolved", rep.Resolved,
			"mismatches", rep.Mismatches,
		)
	}
}

// submitIntent runs one intent through risk review and submission.
func (e *Engine) submitIntent(ctx context.Context, intent model.OrderIntent, snap model.MarketSnapshot) {
	if e.cfg.PostOnly && snap.Ticker != "" && wouldTake(intent, snap) {
		e.logger.Debug("post-only: intent would cross, skipped",
			"ticker", intent.Ticker, "side", intent.Side, "price", intent.Price)
		return
	}

	dec := e.riskEng.Review(intent, e.manager.Position(intent.Ticker),
		e.manager.OpenOrderCount(intent.Ticker), e.manager.OpenOrderTotal())
	if !dec.Approved() {
		return
	}

	o, err := e.manager.Track(dec)
	if err != nil {
		e.logger.Error("track order failed", "ticker", intent.Ticker, "error", err)
		return
	}
	if err := e.manager.MarkPendingSubmit(o.LocalID); err != nil {
		e.logger.Error("mark pending failed", "local_id", o.LocalID, "error", err)
		return
	}

	res, err := e.exec.Submit(ctx, exchange.SubmitRequest{
		ClientID: o.LocalID,
		Ticker:   o.Ticker,
		Side:     o.Side,
		Action:   o.Action,
		Price:    o.Price,
		Quantity: o.Quantity,
		PostOnly: e.cfg.PostOnly,
	})
	switch {
	case err == nil:
		if err := e.manager.HandleAck(o.LocalID, res.ExchangeID); err != nil {
			e.logger.Error("ack failed", "local_id", o.LocalID, "error", err)
		}
	case exchange.IsDefinitiveReject(err):
		e.manager.HandleReject(o.LocalID, err.Error())
	default:
		// Outcome unknown: the order stays pending_submit until the
		// next reconciliation pass settles it.
		e.logger.Warn("submit outcome unknown, leaving order pending",
			"local_id", o.LocalID, "error", err)
	}

	if latest, ok := e.manager.Order(o.LocalID); ok {
		e.saveOrder(ctx, latest)
	}
}

// wouldTake reports whether the intent would execute immediately against
// the snapshot.
func wouldTake(intent model.OrderIntent, snap model.MarketSnapshot) bool {
	if intent.Action == model.ActionBuy {
		ask := snap.Ask(intent.Side)
		return ask > 0 && intent.Price >= ask
	}
	bid := snap.Bid(intent.Side)
	return bid > 0 && intent.Price <= bid
}

func (e *Engine) saveSnapshot(ctx context.Context, s model.MarketSnapshot) {
	if e.db == nil {
		return
	}
	if err := e.db.SaveSnapshot(ctx, s); err != nil {
		e.logger.Warn("save snapshot failed", "ticker", s.Ticker, "error", err)
	}
}

func (e *Engine) saveFill(ctx context.Context, f model.Fill) {
	if e.db == nil {
		return
	}
	if err := e.db.SaveFill(ctx, f); err != nil {
		e.logger.Warn("save fill failed", "fill_id", f.ID, "error", err)
	}
}

func (e *Engine) saveOrder(ctx context.Context, o model.Order) {
	if e.db == nil {
		return
	}
	if err := e.db.SaveOrder(ctx, o); err != nil {
		e.logger.Warn("save order failed", "local_id", o.LocalID, "error", err)
	}
}

// saveOrderByExchangeID persists the order's current revision, terminal
// states included, so a filled order's final record reaches storage.
func (e *Engine) saveOrderByExchangeID(ctx context.Context, exchangeID string) {
	if e.db == nil {
		return
	}
	if o, ok := e.manager.OrderByExchangeID(exchangeID); ok {
		e.saveOrder(ctx, o)
		return
	}
	// Venues that echo the client id report fills against it directly.
	if o, ok := e.manager.Order(exchangeID); ok {
		e.saveOrder(ctx, o)
	}
}

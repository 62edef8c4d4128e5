package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grid_trader/internal/config"
	"grid_trader/internal/core"
	"grid_trader/pkg/concurrency"
	apperrors "grid_trader/pkg/errors"
	"grid_trader/pkg/telemetry"
	"grid_trader/pkg/tradingutils"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Phase is the engine lifecycle state.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseRunning
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is the engine's externally visible state, rendered for reporting.
type Status struct {
	Phase        string          `json:"phase"`
	ContractID   string          `json:"contract_id"`
	CenterPrice  decimal.Decimal `json:"center_price"`
	LastPrice    decimal.Decimal `json:"last_price"`
	LevelCount   int             `json:"level_count"`
	ActiveOrders int             `json:"active_orders"`
	TradesCount  int64           `json:"trades_count"`
	MovesCount   int64           `json:"moves_count"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	Paused       bool            `json:"paused"`
}

// Engine owns the grid state and runs the control loop. It is the single
// synchronization boundary: the fill worker and the loop both take mu before
// touching state, so a refill/flip and a reposition can never interleave.
type Engine struct {
	cfg      *config.Config
	exchange core.IExchange
	store    core.IStateStore
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder

	mu     sync.Mutex
	phase  Phase
	state  *State
	calc   *Calculator
	orders *OrderManager
	repo   *Repositioner

	// Single-worker pool drains fill events off the exchange callback
	// goroutine, preserving the one-owner invariant.
	fillPool *concurrency.WorkerPool

	lastPrice decimal.Decimal

	// Stop/pause gates. The breach side is inferred from the initial center:
	// a gate below the center triggers on prices at or under it, above on
	// prices at or over it.
	stopPrice  decimal.Decimal
	stopBelow  bool
	pausePrice decimal.Decimal
	pauseBelow bool

	stopOnce       sync.Once
	stopCh         chan struct{}
	shutdownReason string
	criticalErr    error

	activeOrdersPolicy retrypolicy.RetryPolicy[[]*core.Order]
}

// NewEngine wires the grid components around the exchange and store.
func NewEngine(cfg *config.Config, exchange core.IExchange, stateStore core.IStateStore, logger core.ILogger) *Engine {
	log := logger.WithField("component", "engine").WithField("contract", cfg.App.ContractID)

	precision := NewPrecisionPolicy(cfg.App.Exchange, cfg.App.Ticker)
	state := NewState()
	calc := NewCalculator(cfg.Spacing(), cfg.Grid.LowerCount, cfg.Grid.UpperCount,
		cfg.PerOrderAmount(), precision, exchange.RoundToTick, logger)

	pace := time.Duration(cfg.Timing.OrderPaceMillis) * time.Millisecond
	pacer := rate.NewLimiter(rate.Every(pace), 1)

	orders := NewOrderManager(exchange, state, calc, pacer, cfg.App.ContractID, cfg.Grid.FillPolicy, logger)
	repo := NewRepositioner(state, calc, orders, cfg.Grid.RepositionMode,
		decimal.NewFromFloat(cfg.Grid.BreakthroughMultiplier), logger)

	fillPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "fill_events",
		MaxWorkers:  1,
		MaxCapacity: 256,
		NonBlocking: true,
	}, logger)

	activeOrdersPolicy := retrypolicy.NewBuilder[[]*core.Order]().
		HandleIf(func(_ []*core.Order, err error) bool {
			return err != nil
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	return &Engine{
		cfg:                cfg,
		exchange:           exchange,
		store:              stateStore,
		logger:             log,
		metrics:            telemetry.GetGlobalMetrics(),
		phase:              PhaseUninitialized,
		state:              state,
		calc:               calc,
		orders:             orders,
		repo:               repo,
		fillPool:           fillPool,
		stopPrice:          decimal.NewFromFloat(cfg.Grid.StopPrice),
		pausePrice:         decimal.NewFromFloat(cfg.Grid.PausePrice),
		stopCh:             make(chan struct{}),
		activeOrdersPolicy: activeOrdersPolicy,
	}
}

// Initialize validates the configuration, connects the exchange, sets the
// center from the live mid-price and places the initial ladder. Configuration
// problems surface before any network activity.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseUninitialized {
		return fmt.Errorf("engine already initialized (phase %s)", e.phase)
	}
	e.phase = PhaseInitializing

	if err := e.calc.Validate(); err != nil {
		e.phase = PhaseStopped
		return err
	}
	for _, warning := range e.cfg.Advisories() {
		e.logger.Warn("Strategy advisory", "detail", warning)
	}

	if err := e.exchange.Connect(ctx); err != nil {
		e.phase = PhaseStopped
		return fmt.Errorf("exchange connect: %w", err)
	}

	e.restoreCounters(ctx)

	bid, ask, err := e.exchange.FetchBestBidAsk(ctx, e.cfg.App.ContractID)
	if err != nil {
		e.phase = PhaseStopped
		return fmt.Errorf("%w: %v", apperrors.ErrPriceUnavailable, err)
	}
	center := e.exchange.RoundToTick(tradingutils.MidPrice(bid, ask))
	e.lastPrice = center

	levels, err := e.calc.Levels(center)
	if err != nil {
		e.phase = PhaseStopped
		return err
	}
	e.state.Reset(center, levels)

	e.stopBelow = e.stopPrice.IsPositive() && e.stopPrice.LessThan(center)
	e.pauseBelow = e.pausePrice.IsPositive() && e.pausePrice.LessThan(center)

	e.exchange.SubscribeOrderUpdates(e.handleOrderUpdate)

	placed, failed := e.orders.PlaceAll(ctx, levels)
	if placed == 0 && len(levels) > 0 {
		e.phase = PhaseStopped
		return fmt.Errorf("%w: no orders placed out of %d levels", apperrors.ErrExchangeCall, len(levels))
	}
	e.logger.Info("Grid initialized",
		"center", center.String(), "levels", len(levels), "placed", placed, "failed", failed,
		"fill_policy", e.cfg.Grid.FillPolicy, "reposition_mode", e.cfg.Grid.RepositionMode,
		"dynamic", e.cfg.Grid.DynamicEnabled)

	e.metrics.SetCenterPrice(e.cfg.App.ContractID, center.InexactFloat64())
	e.metrics.SetActiveOrders(e.cfg.App.ContractID, int64(len(e.state.ActiveOrders)))

	e.phase = PhaseRunning
	return nil
}

// restoreCounters carries trade/move/profit counters over from the last
// snapshot. The ladder itself is always rebuilt from the live book.
func (e *Engine) restoreCounters(ctx context.Context) {
	if e.store == nil {
		return
	}
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		e.logger.Warn("Snapshot restore failed, starting fresh", "error", err)
		return
	}
	if snap == nil {
		return
	}
	e.state.TradesCount = snap.TradesCount
	e.state.MovesCount = snap.MovesCount
	e.state.TotalProfit = snap.TotalProfit
	e.logger.Info("Counters restored from snapshot",
		"trades_count", snap.TradesCount, "moves_count", snap.MovesCount,
		"total_profit", snap.TotalProfit.String())
}

// handleOrderUpdate is invoked from the exchange's goroutines. Only FILLED
// events matter; they are queued onto the single fill worker.
func (e *Engine) handleOrderUpdate(update *core.OrderUpdate) {
	if update.Status != core.OrderStatusFilled {
		return
	}
	if update.ContractID != "" && update.ContractID != e.cfg.App.ContractID {
		return
	}

	orderID := update.OrderID
	fillPrice := update.Price
	fillSize := update.FilledSize

	err := e.fillPool.Submit(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.phase != PhaseRunning {
			return
		}
		e.orders.OnFill(context.Background(), orderID, fillPrice, fillSize)
		e.metrics.SetActiveOrders(e.cfg.App.ContractID, int64(len(e.state.ActiveOrders)))
	})
	if err != nil {
		e.logger.Error("Fill event dropped, queue full", "order_id", orderID, "error", err)
	}
}

// Run drives the control loop until shutdown. At independent cadences it
// polls the price and applies the stop/pause gate, checks for breakthroughs,
// and reconciles grid health. It returns the critical error, if any, after
// cleanup has completed.
func (e *Engine) Run(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.phase != PhaseRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine not running (phase %s)", e.phase)
	}
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.criticalErr = &apperrors.CriticalError{Reason: fmt.Sprintf("panic in control loop: %v", r)}
			e.logger.Error("Control loop panic", "panic", r)
		}
		e.shutdownLocked(context.Background())
		if e.criticalErr != nil {
			err = e.criticalErr
		}
	}()

	ticker := time.NewTicker(time.Duration(e.cfg.Timing.LoopInterval) * time.Second)
	defer ticker.Stop()

	lastMonitor := time.Now()
	lastBreakthrough := time.Now()
	monitorEvery := time.Duration(e.cfg.Timing.MonitorInterval) * time.Second
	breakthroughEvery := time.Duration(e.cfg.Timing.BreakthroughInterval) * time.Second

	for {
		select {
		case <-ctx.Done():
			e.setShutdownReason("context cancelled")
			return nil
		case <-e.stopCh:
			return nil
		case <-ticker.C:
		}

		price, ok := e.pollPrice(ctx)
		if ok {
			if stop := e.checkStopPause(price); stop {
				e.setShutdownReason(fmt.Sprintf("stop price %s reached at %s", e.stopPrice, price))
				return nil
			}

			if e.cfg.Grid.DynamicEnabled && time.Since(lastBreakthrough) >= breakthroughEvery {
				lastBreakthrough = time.Now()
				e.checkBreakthrough(ctx, price)
			}
		}

		if time.Since(lastMonitor) >= monitorEvery {
			lastMonitor = time.Now()
			e.reconcile(ctx)
		}
	}
}

// pollPrice fetches the top of book and returns the mid. A bad snapshot skips
// the cycle; the next poll retries.
func (e *Engine) pollPrice(ctx context.Context) (decimal.Decimal, bool) {
	bid, ask, err := e.exchange.FetchBestBidAsk(ctx, e.cfg.App.ContractID)
	if err != nil {
		e.logger.Warn("Price poll failed, skipping cycle", "error", err)
		return decimal.Zero, false
	}
	price := tradingutils.MidPrice(bid, ask)

	e.mu.Lock()
	e.lastPrice = price
	e.mu.Unlock()
	return price, true
}

// checkStopPause applies the price gates. Returns true when the stop price
// has been breached and the engine must shut down.
func (e *Engine) checkStopPause(price decimal.Decimal) bool {
	if e.stopPrice.IsPositive() {
		breached := (e.stopBelow && price.LessThanOrEqual(e.stopPrice)) ||
			(!e.stopBelow && price.GreaterThanOrEqual(e.stopPrice))
		if breached {
			e.logger.Warn("Stop price reached", "stop_price", e.stopPrice.String(), "price", price.String())
			return true
		}
	}

	if e.pausePrice.IsPositive() {
		beyond := (e.pauseBelow && price.LessThanOrEqual(e.pausePrice)) ||
			(!e.pauseBelow && price.GreaterThanOrEqual(e.pausePrice))
		e.mu.Lock()
		e.orders.SetPaused(beyond)
		e.mu.Unlock()
	}

	return false
}

// checkBreakthrough runs detection and repositioning under the state mutex.
func (e *Engine) checkBreakthrough(ctx context.Context, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	direction := e.repo.CheckBreakthrough(price)
	if direction == MoveNone {
		return
	}

	e.logger.Warn("Price breakthrough detected",
		"direction", direction.String(), "price", price.String(), "center", e.state.CenterPrice.String())

	if err := e.repo.Reposition(ctx, direction); err != nil {
		e.logger.Error("Repositioning failed", "error", err)
	}
	e.metrics.SetActiveOrders(e.cfg.App.ContractID, int64(len(e.state.ActiveOrders)))
}

// reconcile compares the exchange's view of resting orders against the grid's
// and warns when coverage drops below the configured ratio. It also persists
// a snapshot and logs the periodic status line.
func (e *Engine) reconcile(ctx context.Context) {
	orders, err := failsafe.With(e.activeOrdersPolicy).
		GetWithExecution(func(exec failsafe.Execution[[]*core.Order]) ([]*core.Order, error) {
			return e.exchange.GetActiveOrders(ctx, e.cfg.App.ContractID)
		})
	if err != nil {
		e.logger.Warn("Reconciliation query failed", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	expected := len(e.state.ActiveOrders)
	actual := len(orders)
	if expected > 0 {
		ratio := actual * 100 / expected
		if ratio < e.cfg.Grid.HealthWarnRatioPercent {
			e.logger.Warn("Grid coverage degraded",
				"expected", expected, "actual", actual, "ratio_percent", ratio)
		}
	}

	e.logger.Info("Grid status",
		"phase", e.phase.String(),
		"center", e.state.CenterPrice.String(),
		"last_price", e.lastPrice.String(),
		"active_orders", expected,
		"exchange_orders", actual,
		"trades_count", e.state.TradesCount,
		"moves_count", e.state.MovesCount,
		"total_profit", e.state.TotalProfit.String(),
		"paused", e.orders.Paused())

	e.metrics.SetActiveOrders(e.cfg.App.ContractID, int64(expected))
	e.metrics.SetCenterPrice(e.cfg.App.ContractID, e.state.CenterPrice.InexactFloat64())

	e.saveSnapshot(ctx)
}

// saveSnapshot persists the current state. Caller holds mu.
func (e *Engine) saveSnapshot(ctx context.Context) {
	if e.store == nil {
		return
	}
	snap := e.state.Snapshot(e.cfg.App.ContractID)
	snap.SavedAtNano = time.Now().UnixNano()
	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		e.logger.Warn("Snapshot save failed", "error", err)
	}
}

// Shutdown requests a graceful stop. Safe to call from any goroutine and
// idempotent; the loop observes it between iterations.
func (e *Engine) Shutdown(reason string) {
	e.setShutdownReason(reason)
}

func (e *Engine) setShutdownReason(reason string) {
	e.stopOnce.Do(func() {
		e.shutdownReason = reason
		close(e.stopCh)
	})
}

// shutdownLocked tears the engine down: optionally cancels resting orders,
// saves a final snapshot, disconnects and logs final counters. By default
// orders are left resting so the strategy can be resumed externally.
func (e *Engine) shutdownLocked(ctx context.Context) {
	e.mu.Lock()
	if e.phase == PhaseStopped || e.phase == PhaseShuttingDown {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseShuttingDown
	reason := e.shutdownReason
	if reason == "" {
		reason = "requested"
	}
	e.logger.Info("Shutting down", "reason", reason, "cancel_on_exit", e.cfg.Grid.CancelOnExit)

	if e.cfg.Grid.CancelOnExit {
		cancelled, failed := e.orders.CancelAll(ctx)
		e.logger.Info("Resting orders cancelled", "cancelled", cancelled, "failed", failed)
	} else {
		e.logger.Info("Resting orders left open", "count", len(e.state.ActiveOrders))
	}

	e.saveSnapshot(ctx)
	e.mu.Unlock()

	e.fillPool.Stop()

	if err := e.exchange.Disconnect(); err != nil {
		e.logger.Warn("Exchange disconnect failed", "error", err)
	}

	e.mu.Lock()
	e.logger.Info("Final counters",
		"trades_count", e.state.TradesCount,
		"moves_count", e.state.MovesCount,
		"total_profit", e.state.TotalProfit.String())
	e.phase = PhaseStopped
	e.mu.Unlock()
}

// Status returns a point-in-time view for reporting surfaces.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Phase:        e.phase.String(),
		ContractID:   e.cfg.App.ContractID,
		CenterPrice:  e.state.CenterPrice,
		LastPrice:    e.lastPrice,
		LevelCount:   len(e.state.Levels),
		ActiveOrders: len(e.state.ActiveOrders),
		TradesCount:  e.state.TradesCount,
		MovesCount:   e.state.MovesCount,
		TotalProfit:  e.state.TotalProfit,
		Paused:       e.orders.Paused(),
	}
}

// Package engine implements the algorithm manager: the loop that consumes
// time slices, performs per-slice bookkeeping and drives the user algorithm
// under a time-limit monitor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aricooperman/golean/feed"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/order"
	"github.com/aricooperman/golean/portfolio"
	"github.com/aricooperman/golean/realtime"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/tools"
	"github.com/aricooperman/golean/tools/log"
)

// scan cadences for the portfolio housekeeping steps. Live mode scans margin
// on every slice.
const (
	marginCallInterval     = time.Minute
	settlementScanInterval = 30 * time.Minute

	// warm-up replay reports progress every this many slices
	warmUpProgressEvery = 50
)

// Job identifies one algorithm run and its execution mode.
type Job struct {
	AlgorithmID string
	UserID      string
	ProjectID   string

	Live bool
	// LiquidateOnStop flattens the book when a live run ends.
	LiquidateOnStop bool

	TimeZone      *time.Location
	TimeLoopLimit time.Duration

	// WarmUpStart enables history warm-up; slices before WarmUpEnd run with
	// the warming-up flag set.
	WarmUpStart time.Time
	WarmUpEnd   time.Time
}

// Consolidator aggregates subscription data into coarser bars; registered
// per symbol and fed during the consolidator step of every slice.
type Consolidator interface {
	Update(point *model.DataPoint)
}

// Manager is the central consumer of the time-slice queue. It owns the
// algorithm status and is the only writer of the Running state.
type Manager struct {
	Job          Job
	Algorithm    service.Algorithm
	Queue        *feed.HandoffQueue[*model.TimeSlice]
	Portfolio    *portfolio.Portfolio
	Transactions *order.Controller
	Results      service.ResultHandler
	Realtime     *realtime.Scheduler
	Commands     service.CommandQueue
	History      service.HistoryProvider

	// CreateSecurity materialises a security for a symbol added by universe
	// selection.
	CreateSecurity func(symbol model.Symbol) *portfolio.Security

	Isolator tools.Isolator

	mu            sync.Mutex
	status        model.AlgorithmStatus
	runtimeError  error
	consolidators map[string][]Consolidator

	monitor       *tools.TimeMonitor
	algorithmTime time.Time
	warmingUp     bool

	nextMarginCall     time.Time
	nextSettlementScan time.Time
	lastSliceTime      time.Time
	currentDay         time.Time
	dayStartEquity     float64
}

// Status returns the current lifecycle state.
func (m *Manager) Status() model.AlgorithmStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == "" {
		return model.StatusInitializing
	}
	return m.status
}

// SetStatus is the external setter; it refuses Running, which only the
// manager itself writes.
func (m *Manager) SetStatus(status model.AlgorithmStatus) {
	if status == model.StatusRunning {
		return
	}
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Manager) setStatus(status model.AlgorithmStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

// SetRuntimeError records a fatal failure observed outside the loop, e.g. by
// a feed driver.
func (m *Manager) SetRuntimeError(err error) {
	m.mu.Lock()
	if m.runtimeError == nil {
		m.runtimeError = err
	}
	m.mu.Unlock()
}

func (m *Manager) takeRuntimeError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtimeError
}

// RegisterConsolidator feeds the symbol's non-internal data into c each
// slice.
func (m *Manager) RegisterConsolidator(symbol string, c Consolidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consolidators == nil {
		m.consolidators = make(map[string][]Consolidator)
	}
	m.consolidators[symbol] = append(m.consolidators[symbol], c)
}

// IsWarmingUp reports whether the loop is still replaying warm-up history;
// algorithms query it to skip trading during the replay.
func (m *Manager) IsWarmingUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warmingUp
}

func (m *Manager) setWarmingUp(warming bool) {
	m.mu.Lock()
	m.warmingUp = warming
	m.mu.Unlock()
}

// AlgorithmTime is the algorithm's current UTC time.
func (m *Manager) AlgorithmTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.algorithmTime
}

// Run executes the algorithm loop under the isolator until the queue ends,
// the status turns terminal or the time limit trips.
func (m *Manager) Run(ctx context.Context) error {
	m.monitor = tools.NewTimeMonitor(m.Job.TimeLoopLimit)
	m.setStatus(model.StatusRunning)
	m.Results.StatusUpdate(model.StatusRunning, "")

	if err := m.warmUp(ctx); err != nil {
		m.finish(model.StatusRuntimeError)
		return err
	}

	err := m.Isolator.ExecuteWithTimeLimit(ctx, m.monitor.Violation, m.loop)

	var limitErr *tools.TimeLimitError
	switch {
	case errors.As(err, &limitErr):
		m.Results.RuntimeError(limitErr, "")
		m.finish(model.StatusRuntimeError)
		return err
	case err != nil && ctx.Err() == nil:
		m.finish(model.StatusRuntimeError)
		return err
	}

	status := m.Status()
	if !status.IsTerminal() {
		status = model.StatusCompleted
	}
	m.finish(status)
	return ctx.Err()
}

func (m *Manager) loop(ctx context.Context) error {
	slices := m.Queue.Consume(ctx)
	defer func() { _ = slices.Close() }()
	for slices.MoveNext() {
		if stop := m.iterate(ctx, slices.Current()); stop {
			return nil
		}
	}
	return nil
}

// warmUp replays history slices through the regular iteration with the
// warming-up flag set. The flag drops once a slice's time reaches the
// warm-up end, i.e. the wall clock for live runs.
func (m *Manager) warmUp(ctx context.Context) error {
	if m.History == nil || m.Job.WarmUpStart.IsZero() {
		return nil
	}
	end := m.Job.WarmUpEnd
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var configs []*model.SubscriptionConfig
	for _, security := range m.Portfolio.Securities.Snapshot() {
		configs = append(configs, security.Config)
	}
	history, err := m.History.History(ctx, configs, m.Job.WarmUpStart, end)
	if err != nil {
		return fmt.Errorf("warm up: %w", err)
	}

	m.setWarmingUp(true)
	defer m.setWarmingUp(false)
	log.Infof("[SETUP] Warming up from %s with %d slices", m.Job.WarmUpStart, len(history))
	for i, ts := range history {
		if !ts.Time.Before(end) {
			break
		}
		if i%warmUpProgressEvery == 0 {
			m.Results.StatusUpdate(model.StatusRunning,
				fmt.Sprintf("Processing warm-up data %d/%d", i+1, len(history)))
		}
		m.monitor.StartNewIteration()
		if stop := m.iterate(ctx, ts); stop {
			return m.takeRuntimeError()
		}
	}
	m.Results.StatusUpdate(model.StatusRunning, "Warm-up finished")
	return nil
}

// iterate runs the per-slice sequence. It returns true when the loop must
// stop.
func (m *Manager) iterate(ctx context.Context, ts *model.TimeSlice) bool {
	m.monitor.StartNewIteration()

	if m.Status() != model.StatusRunning || ctx.Err() != nil {
		return true
	}

	m.drainCommands()

	// daily samples cover the previous day and are taken before its
	// successor's data is applied
	if !m.Job.Live && !m.IsWarmingUp() {
		m.sampleDayBoundary(ts.Time)
	}

	m.mu.Lock()
	m.algorithmTime = ts.Time
	m.mu.Unlock()

	if len(ts.Slice.SymbolChanges) > 0 {
		if !m.guard("OnSymbolChanged", func() error {
			return m.Algorithm.OnSymbolChanged(ts.Slice.SymbolChanges)
		}) {
			return true
		}
		for _, change := range ts.Slice.SymbolChanges {
			if err := m.Transactions.CancelOpenOrdersOnSymbolChange(change.Aux.OldSymbol); err != nil {
				m.Results.HandledError(err)
			}
		}
	}

	m.registerAddedSecurities(ts.SecurityChanges)

	m.Portfolio.Cash.Apply(ts.CashUpdates)
	for _, update := range ts.SecuritiesUpdates {
		security, ok := m.Portfolio.Securities.Get(update.Symbol)
		if !ok {
			continue
		}
		security.Update(update.Data)
		m.Transactions.UpdatePrice(update.Symbol.Value, security.Price)
	}

	m.Realtime.SetTime(ts.Time)

	m.dispatchOrderEvents(m.Transactions.ProcessSynchronousEvents())

	for _, symbol := range m.Transactions.SweepDelistingTickets(m.holdingQuantity) {
		m.Portfolio.Securities.Remove(symbol)
		log.Infof("removed delisted security %s", symbol)
	}

	if err := m.takeRuntimeError(); err != nil {
		m.Results.RuntimeError(err, "")
		m.setStatus(model.StatusRuntimeError)
		return true
	}

	if m.Job.Live || !ts.Time.Before(m.nextMarginCall) {
		m.nextMarginCall = ts.Time.Add(marginCallInterval)
		if stop := m.handleMarginCalls(); stop {
			return true
		}
	}

	if !ts.Time.Before(m.nextSettlementScan) {
		m.nextSettlementScan = ts.Time.Add(settlementScanInterval)
		m.Portfolio.ScanForCashSettlement(ts.Time)
	}

	if ts.SecurityChanges.Count() > 0 {
		if !m.guard("OnSecuritiesChanged", func() error {
			return m.Algorithm.OnSecuritiesChanged(ts.SecurityChanges)
		}) {
			return true
		}
	}

	for _, dividend := range ts.Slice.Dividends {
		m.Portfolio.ApplyDividend(dividend.Symbol, dividend.Aux.Distribution)
	}
	for _, split := range ts.Slice.Splits {
		m.applySplit(split)
	}

	m.updateConsolidators(ts.ConsolidatorUpdates)

	if len(ts.CustomData) > 0 {
		if !m.guard("OnCustomData", func() error {
			return m.Algorithm.OnCustomData(ts.CustomData)
		}) {
			return true
		}
	}

	if stop := m.dispatchTyped(ts.Slice); stop {
		return true
	}

	if stop := m.handleDelistings(ts.Slice.Delistings); stop {
		return true
	}

	if !m.guard("OnData", func() error { return m.Algorithm.OnData(ts.Slice) }) {
		return true
	}

	m.dispatchOrderEvents(m.Transactions.ProcessSynchronousEvents())
	m.processResultEvents()

	m.lastSliceTime = ts.Time
	return false
}

func (m *Manager) timeZone() *time.Location {
	if m.Job.TimeZone != nil {
		return m.Job.TimeZone
	}
	return time.UTC
}

// drainCommands applies queued external commands, reporting each outcome.
func (m *Manager) drainCommands() {
	if m.Commands == nil {
		return
	}
	for {
		command, ok := m.Commands.TryDequeue()
		if !ok {
			return
		}
		if err := m.applyCommand(command); err != nil {
			m.Results.HandledError(fmt.Errorf("command %s: %w", command, err))
			continue
		}
		m.Results.DebugMessage(fmt.Sprintf("command %s applied", command))
	}
}

func (m *Manager) applyCommand(command service.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return command.Apply(m.Algorithm)
}

// sampleDayBoundary emits the previous day's equity and performance samples
// when the slice crosses into a new day.
func (m *Manager) sampleDayBoundary(frontier time.Time) {
	day := frontier.In(m.timeZone()).Truncate(24 * time.Hour)
	if m.currentDay.IsZero() {
		m.currentDay = day
		m.dayStartEquity = m.Portfolio.TotalPortfolioValue()
		return
	}
	if !day.After(m.currentDay) {
		return
	}
	m.sampleDay(m.lastSliceTime)
	m.currentDay = day
	m.dayStartEquity = m.Portfolio.TotalPortfolioValue()
}

func (m *Manager) sampleDay(at time.Time) {
	equity := m.Portfolio.TotalPortfolioValue()
	m.Results.SampleEquity(at, equity)
	if m.dayStartEquity != 0 {
		performance := (equity - m.dayStartEquity) / m.dayStartEquity
		m.Results.SamplePerformance(at, math.Round(performance*1e10)/1e10)
	}
	for _, security := range m.Portfolio.Securities.Snapshot() {
		symbol := security.Symbol
		m.guard("OnEndOfDay", func() error { return m.Algorithm.OnEndOfDay(symbol) })
	}
}

func (m *Manager) registerAddedSecurities(changes model.SecurityChanges) {
	if m.CreateSecurity == nil {
		return
	}
	for _, symbol := range changes.Added {
		if m.Portfolio.Securities.Contains(symbol) {
			continue
		}
		if security := m.CreateSecurity(symbol); security != nil {
			m.Portfolio.Securities.Add(security)
			log.Infof("universe added %s", symbol)
		}
	}
}

func (m *Manager) handleMarginCalls() bool {
	requests, warning := m.Portfolio.ScanForMarginCall()
	if warning {
		return !m.guard("OnMarginCallWarning", m.Algorithm.OnMarginCallWarning)
	}
	if len(requests) == 0 {
		return false
	}

	var approved []model.Order
	if !m.guard("OnMarginCall", func() error {
		var err error
		approved, err = m.Algorithm.OnMarginCall(requests)
		return err
	}) {
		return true
	}
	for _, request := range requests {
		log.Warnf("[MARGIN CALL] %s", request)
	}
	for _, request := range approved {
		if _, err := m.Transactions.CreateOrderMarket(request.Side, request.Symbol, request.Quantity); err != nil {
			m.Results.HandledError(err)
		}
	}
	return false
}

func (m *Manager) applySplit(split *model.DataPoint) {
	factor := split.Aux.SplitFactor
	m.Portfolio.ApplySplit(split.Symbol, factor)

	normalization := model.NormalizationAdjusted
	if security, ok := m.Portfolio.Securities.Get(split.Symbol); ok && security.Config != nil {
		normalization = security.Config.Normalization
	}
	if err := m.Transactions.AdjustOrdersForSplit(split.Symbol.Value, factor,
		normalization, m.Job.Live); err != nil {
		m.Results.HandledError(err)
	}
}

func (m *Manager) updateConsolidators(packets []*model.Packet) {
	m.mu.Lock()
	registry := m.consolidators
	m.mu.Unlock()
	if len(registry) == 0 {
		return
	}
	for _, packet := range packets {
		consolidators := registry[packet.Config.Symbol.Value]
		for _, point := range packet.Data {
			for _, consolidator := range consolidators {
				consolidator.Update(point)
			}
		}
	}
}

// dispatchTyped fires the per-type user handlers in the fixed intra-slice
// order.
func (m *Manager) dispatchTyped(slice *model.Slice) bool {
	if len(slice.Bars) > 0 {
		if !m.guard("OnTradeBars", func() error { return m.Algorithm.OnTradeBars(slice.Bars) }) {
			return true
		}
	}
	if len(slice.QuoteBars) > 0 {
		if !m.guard("OnQuoteBars", func() error { return m.Algorithm.OnQuoteBars(slice.QuoteBars) }) {
			return true
		}
	}
	if len(slice.Ticks) > 0 {
		if !m.guard("OnTicks", func() error { return m.Algorithm.OnTicks(slice.Ticks) }) {
			return true
		}
	}
	if len(slice.Dividends) > 0 {
		if !m.guard("OnDividends", func() error { return m.Algorithm.OnDividends(slice.Dividends) }) {
			return true
		}
	}
	if len(slice.Splits) > 0 {
		if !m.guard("OnSplits", func() error { return m.Algorithm.OnSplits(slice.Splits) }) {
			return true
		}
	}
	if len(slice.Delistings) > 0 {
		if !m.guard("OnDelistings", func() error { return m.Algorithm.OnDelistings(slice.Delistings) }) {
			return true
		}
	}
	return false
}

// handleDelistings liquidates on warnings and removes flat securities once
// delisted.
func (m *Manager) handleDelistings(delistings map[string]*model.DataPoint) bool {
	for _, delisting := range delistings {
		switch delisting.Aux.Kind {
		case model.AuxDelistingWarning:
			quantity := m.holdingQuantity(delisting.Symbol)
			if err := m.Transactions.SubmitDelistingLiquidation(delisting.Symbol, quantity); err != nil {
				m.Results.HandledError(err)
			}
		case model.AuxDelisted:
			if m.holdingQuantity(delisting.Symbol) == 0 {
				m.Portfolio.Securities.Remove(delisting.Symbol)
			}
		}
	}
	return false
}

func (m *Manager) holdingQuantity(symbol model.Symbol) float64 {
	security, ok := m.Portfolio.Securities.Get(symbol)
	if !ok {
		return 0
	}
	return security.Holdings.Quantity
}

func (m *Manager) dispatchOrderEvents(orders []model.Order) {
	for _, o := range orders {
		m.Results.OrderEvent(o)
		o := o
		m.guard("OnOrderEvent", func() error { return m.Algorithm.OnOrderEvent(o) })
	}
}

func (m *Manager) processResultEvents() {
	if emitter, ok := m.Results.(interface{ ProcessSynchronousEvents() }); ok {
		emitter.ProcessSynchronousEvents()
	}
}

// guard wraps a user callback: an error or panic records the runtime error,
// flips the status and stops the loop.
func (m *Manager) guard(name string, fn func() error) bool {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v\n%s", name, r, debug.Stack())
			}
		}()
		if callbackErr := fn(); callbackErr != nil {
			return fmt.Errorf("%s: %w", name, callbackErr)
		}
		return nil
	}()
	if err == nil {
		return true
	}
	m.SetRuntimeError(err)
	m.Results.RuntimeError(err, "")
	m.setStatus(model.StatusRuntimeError)
	return false
}

// finish runs the exit sequence: the end-of-algorithm callback, a final
// forced synchronous pass, the live liquidation option and the terminal
// status update.
func (m *Manager) finish(status model.AlgorithmStatus) {
	if !m.Job.Live && status == model.StatusCompleted && !m.lastSliceTime.IsZero() {
		m.sampleDay(m.lastSliceTime)
	}

	endErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("OnEndOfAlgorithm: panic: %v", r)
			}
		}()
		return m.Algorithm.OnEndOfAlgorithm()
	}()
	if endErr != nil {
		m.Results.HandledError(endErr)
	}

	m.dispatchOrderEvents(m.Transactions.ProcessSynchronousEvents())
	m.processResultEvents()

	if m.Job.Live && m.Job.LiquidateOnStop && status != model.StatusRuntimeError {
		m.liquidate()
		status = model.StatusLiquidated
	}

	m.setStatus(status)
	m.Results.StatusUpdate(status, "")
	m.Results.Finalize()
	log.Infof("algorithm finished with status %s", status)
}

func (m *Manager) liquidate() {
	for _, security := range m.Portfolio.Securities.Snapshot() {
		quantity := security.Holdings.Quantity
		if quantity == 0 {
			continue
		}
		side := model.SideTypeSell
		if quantity < 0 {
			side = model.SideTypeBuy
			quantity = -quantity
		}
		if _, err := m.Transactions.CreateOrderMarket(side, security.Symbol.Value, quantity); err != nil {
			m.Results.HandledError(err)
		}
	}
}

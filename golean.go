// Package golean wires the engine together: data feeds, the slice queue, the
// algorithm manager, the transaction handler, results and notifications.
package golean

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aricooperman/golean/config"
	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/engine"
	"github.com/aricooperman/golean/exchange"
	"github.com/aricooperman/golean/feed"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/notification"
	"github.com/aricooperman/golean/order"
	"github.com/aricooperman/golean/portfolio"
	"github.com/aricooperman/golean/realtime"
	"github.com/aricooperman/golean/results"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/storage"
	"github.com/aricooperman/golean/tools"
	"github.com/aricooperman/golean/tools/log"
)

const defaultDatabase = "golean.db"

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04",
	})
}

// Engine is the composition root of one algorithm run. Build it with New,
// register subscriptions and securities, then Run.
type Engine struct {
	ctx       context.Context
	cfg       *config.Config
	job       engine.Job
	algorithm service.Algorithm
	broker    service.Broker
	feeder    service.Feeder

	storage       storage.Storage
	portfolio     *portfolio.Portfolio
	orderFeed     *order.Feed
	controller    *order.Controller
	subscriptions *feed.SubscriptionCollection
	queue         *feed.HandoffQueue[*model.TimeSlice]
	assembler     *feed.Assembler
	fanout        *feed.Exchange
	scheduler     *realtime.Scheduler
	results       *results.Handler
	manager       *engine.Manager
	notifier      service.Notifier
	telegram      service.Telegram
	paperWallet   *exchange.PaperWallet
	replay        []replaySource

	start          time.Time
	end            time.Time
	selectUniverse feed.UniverseSelector
	history        service.HistoryProvider
	commands       service.CommandQueue
	resultOptions  []results.Option
}

type Option func(*Engine)

// WithConfig applies the loaded runtime configuration; the time-loop limit
// fills the job when the job leaves it zero.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithStorage overrides the order store; the default is a local file database
// for live runs and an in-memory store for backtests.
func WithStorage(store storage.Storage) Option {
	return func(e *Engine) { e.storage = store }
}

// WithPortfolio overrides the default portfolio.
func WithPortfolio(p *portfolio.Portfolio) Option {
	return func(e *Engine) { e.portfolio = p }
}

// WithBacktest replays the registered subscriptions over the period instead
// of running live.
func WithBacktest(start, end time.Time) Option {
	return func(e *Engine) {
		e.start = start
		e.end = end
	}
}

// WithPaperWallet attaches a simulated broker whose summary prints after the
// run.
func WithPaperWallet(wallet *exchange.PaperWallet) Option {
	return func(e *Engine) { e.paperWallet = wallet }
}

// WithFeeder sets the live market-data source.
func WithFeeder(feeder service.Feeder) Option {
	return func(e *Engine) { e.feeder = feeder }
}

// WithNotifier registers a notifier for orders, errors and debug digests.
func WithNotifier(notifier service.Notifier) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithHistoryProvider enables warm-up replay before the run starts.
func WithHistoryProvider(history service.HistoryProvider) Option {
	return func(e *Engine) { e.history = history }
}

// WithCommandQueue feeds external control commands into the manager loop.
func WithCommandQueue(commands service.CommandQueue) Option {
	return func(e *Engine) { e.commands = commands }
}

// WithUniverseSelector maps universe data to securities deltas.
func WithUniverseSelector(selector feed.UniverseSelector) Option {
	return func(e *Engine) { e.selectUniverse = selector }
}

// WithResultOptions forwards extra options to the result handler, e.g. an
// output directory.
func WithResultOptions(options ...results.Option) Option {
	return func(e *Engine) { e.resultOptions = append(e.resultOptions, options...) }
}

// WithLogLevel sets the global log level.
func WithLogLevel(level log.Level) Option {
	return func(*Engine) { log.SetLevel(level) }
}

func New(ctx context.Context, job engine.Job, algorithm service.Algorithm,
	broker service.Broker, options ...Option) (*Engine, error) {

	e := &Engine{
		ctx:           ctx,
		job:           job,
		algorithm:     algorithm,
		broker:        broker,
		subscriptions: feed.NewSubscriptionCollection(),
		queue:         feed.NewHandoffQueue[*model.TimeSlice](1),
		scheduler:     realtime.NewScheduler(),
	}
	for _, option := range options {
		option(e)
	}

	if e.cfg != nil && e.job.TimeLoopLimit == 0 {
		e.job.TimeLoopLimit = e.cfg.TimeLoopLimit()
	}
	if e.job.TimeLoopLimit == 0 {
		e.job.TimeLoopLimit = 10 * time.Minute
	}
	if !e.job.Live && e.start.IsZero() {
		return nil, fmt.Errorf("backtest period not set, use WithBacktest")
	}

	var err error
	if e.storage == nil {
		if e.job.Live {
			e.storage, err = storage.FromFile(defaultDatabase)
		} else {
			e.storage, err = storage.FromMemory()
		}
		if err != nil {
			return nil, err
		}
	}

	if e.portfolio == nil {
		e.portfolio = portfolio.New("USD", 100_000)
	}

	e.orderFeed = order.NewOrderFeed()
	e.controller = order.NewController(ctx, broker, e.storage, e.orderFeed)

	e.assembler = &feed.Assembler{
		TimeZone:       e.job.TimeZone,
		CashCurrencies: e.portfolio.Cash.CurrenciesFor,
	}
	e.fanout = feed.NewExchange(100 * time.Millisecond)

	if e.history == nil && !e.job.Live && !e.job.WarmUpStart.IsZero() {
		e.history = &replayHistory{engine: e}
	}

	resultJob := results.Job{
		AlgorithmID: e.job.AlgorithmID,
		UserID:      e.job.UserID,
		ProjectID:   e.job.ProjectID,
		Live:        e.job.Live,
	}
	if e.notifier != nil {
		e.resultOptions = append(e.resultOptions, results.WithNotifier(e.notifier))
	}
	e.results = results.NewHandler(resultJob, e.resultOptions...)

	e.manager = &engine.Manager{
		Job:          e.job,
		Algorithm:    algorithm,
		Queue:        e.queue,
		Portfolio:    e.portfolio,
		Transactions: e.controller,
		Results:      e.results,
		Realtime:     e.scheduler,
		Commands:     e.commands,
		History:      e.history,
		CreateSecurity: func(symbol model.Symbol) *portfolio.Security {
			cfg := model.NewSubscriptionConfig(symbol, model.ResolutionMinute, time.UTC, time.UTC)
			return portfolio.NewSecurity(cfg, data.AlwaysOpenHours(time.UTC))
		},
	}

	return e, nil
}

// SetTelegram wires the trading bot after construction; the bot needs the
// controller and manager, which only exist once New returns.
func (e *Engine) SetTelegram(settings notification.Settings) error {
	bot, err := notification.NewTelegram(e.controller, e.broker, e.manager, settings)
	if err != nil {
		return err
	}
	e.telegram = bot
	if e.notifier == nil {
		e.notifier = bot
	}
	return nil
}

// AddSubscription registers a data source and its security. Call before Run.
// Replayable sources are memoized so the warm-up history provider can walk
// the same sequence without consuming the run's cursor.
func (e *Engine) AddSubscription(config *model.SubscriptionConfig,
	hours *data.ExchangeHours, source tools.Enumerator[*model.DataPoint]) {

	if _, streaming := source.(*feed.StreamEnumerator); !streaming {
		memo := tools.NewMemoizer(source)
		e.replay = append(e.replay, replaySource{config: config, memo: memo})
		source = memo.Enumerate()
	}

	e.subscriptions.Add(feed.NewSubscription(config, hours, source))
	if !config.IsInternal && !config.IsCustom {
		e.portfolio.Securities.Add(portfolio.NewSecurity(config, hours))
	}
	e.trackConversion(config)
}

// trackConversion registers quote-currency rate tracking for pairs quoted in
// the account currency, e.g. BTCUSDT updates BTC when the account holds USDT.
func (e *Engine) trackConversion(config *model.SubscriptionConfig) {
	switch config.SecurityType {
	case model.SecurityTypeForex, model.SecurityTypeCfd, model.SecurityTypeCrypto:
	default:
		return
	}
	account := e.portfolio.Cash.AccountCurrency()
	base, found := strings.CutSuffix(config.Symbol.Value, account)
	if !found || base == "" {
		return
	}
	e.portfolio.Cash.TrackConversion(base, config.Symbol.Value)
}

// AddLiveSubscription opens a broker data stream for the config and registers
// it. The stream is advanced by the fan-out exchange worker, which routes
// each datum into the subscription's buffer; stream errors are logged.
func (e *Engine) AddLiveSubscription(config *model.SubscriptionConfig,
	hours *data.ExchangeHours) error {

	if e.feeder == nil {
		return fmt.Errorf("no feeder configured, use WithFeeder")
	}

	upstream := feed.NewStreamEnumerator()
	cdata, cerr := e.feeder.DataSubscription(e.ctx, config)
	go func() {
		defer upstream.Finish()
		for {
			select {
			case dp, ok := <-cdata:
				if !ok {
					return
				}
				upstream.Push(dp)
			case err, ok := <-cerr:
				if !ok {
					return
				}
				log.Error("golean: subscription ", config.Symbol, ": ", err)
			case <-e.ctx.Done():
				return
			}
		}
	}()

	buffer := feed.NewStreamEnumerator()
	e.fanout.AddEnumerator(config.Symbol, upstream,
		feed.WithShouldAdvance(func() bool {
			return upstream.Len() > 0 || upstream.Exhausted()
		}),
		feed.WithOnFinished(func(symbol model.Symbol) {
			log.Infof("golean: live stream %s finished", symbol)
		}))
	e.fanout.SetDataHandler(config.Symbol, buffer.Push)

	e.AddSubscription(config, hours, buffer)
	return nil
}

// Schedule registers a timed callback fired by the realtime handler.
func (e *Engine) Schedule(event *realtime.ScheduledEvent) {
	e.scheduler.Add(event)
}

// Controller exposes the transaction handler, e.g. for manual orders.
func (e *Engine) Controller() *order.Controller { return e.controller }

// Manager exposes the algorithm manager, e.g. for status control.
func (e *Engine) Manager() *engine.Manager { return e.manager }

// Results exposes the result handler for inspection after the run.
func (e *Engine) Results() *results.Handler { return e.results }

// Run executes the algorithm until the data ends, the status turns terminal
// or the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.algorithm.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	e.orderFeed.Start()
	if e.notifier != nil {
		for _, security := range e.portfolio.Securities.Snapshot() {
			e.orderFeed.Subscribe(security.Symbol.Value, e.notifier.OnOrder, false)
		}
	}
	if e.telegram != nil {
		e.telegram.Start()
	}

	driverCtx, cancelDriver := context.WithCancel(ctx)
	defer cancelDriver()

	if e.job.Live {
		go e.scheduler.Run(driverCtx)
		live := &feed.LiveFeed{
			Subscriptions:  e.subscriptions,
			Queue:          e.queue,
			Assembler:      e.assembler,
			Exchange:       e.fanout,
			SelectUniverse: e.selectUniverse,
			OnRuntimeError: e.manager.SetRuntimeError,
		}
		go func() { log.CheckErr(log.WarnLevel, live.Run(driverCtx)) }()
	} else {
		backtest := &feed.BacktestFeed{
			Subscriptions:  e.subscriptions,
			Queue:          e.queue,
			Assembler:      e.assembler,
			Start:          e.start,
			End:            e.end,
			SelectUniverse: e.selectUniverse,
			ShowProgress:   true,
		}
		go func() { log.CheckErr(log.WarnLevel, backtest.Run(driverCtx)) }()
	}

	err := e.manager.Run(ctx)

	if e.paperWallet != nil {
		e.paperWallet.Summary()
	}
	return err
}

// replaySource pairs a subscription with its memoized sequence so warm-up
// can walk the same data without consuming the run's cursor.
type replaySource struct {
	config *model.SubscriptionConfig
	memo   *tools.Memoizer[*model.DataPoint]
}

// replayHistory rebuilds warm-up slices from the memoized subscription
// sources: every datum inside the window goes through a priority queue and
// drains in time order, with equal end times grouped into one slice.
type replayHistory struct {
	engine *Engine
}

func (h *replayHistory) History(ctx context.Context, configs []*model.SubscriptionConfig,
	start, end time.Time) ([]*model.TimeSlice, error) {

	wanted := make(map[string]bool, len(configs))
	for _, config := range configs {
		wanted[config.Symbol.Value] = true
	}

	queue := model.NewPriorityQueue(nil)
	owners := make(map[string]*model.SubscriptionConfig)
	for _, src := range h.engine.replay {
		if len(wanted) > 0 && !wanted[src.config.Symbol.Value] {
			continue
		}
		owners[src.config.Symbol.Value] = src.config

		cursor := src.memo.Enumerate()
		for cursor.MoveNext() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			dp := cursor.Current()
			if dp.EndTime.Before(start) {
				continue
			}
			if dp.EndTime.After(end) {
				break
			}
			queue.Push(dp)
		}
		_ = cursor.Close()
	}

	var slices []*model.TimeSlice
	for queue.Len() > 0 {
		frontier := queue.Peek().(*model.DataPoint).EndTime
		grouped := make(map[string][]*model.DataPoint)
		for queue.Len() > 0 && queue.Peek().(*model.DataPoint).EndTime.Equal(frontier) {
			dp := queue.Pop().(*model.DataPoint)
			grouped[dp.Symbol.Value] = append(grouped[dp.Symbol.Value], dp)
		}

		var packets []*model.Packet
		for symbol, points := range grouped {
			config, ok := owners[symbol]
			if !ok {
				continue
			}
			packets = append(packets, &model.Packet{Config: config, Data: points})
		}
		slices = append(slices, h.engine.assembler.Assemble(frontier, packets, model.SecurityChanges{}))
	}
	return slices, nil
}

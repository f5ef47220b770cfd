package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/calendar"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange/fund"
	"github.com/lunarquant/lunar/pkg/exchange/future"
	"github.com/lunarquant/lunar/pkg/exchange/stock"
	"github.com/lunarquant/lunar/pkg/ledger"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/results"
	"github.com/lunarquant/lunar/pkg/risk"
	"github.com/lunarquant/lunar/pkg/strategy"
	"github.com/lunarquant/lunar/pkg/trade"
	"github.com/lunarquant/lunar/pkg/utility"
)

// Engine owns the whole run: every component hangs off it, there is no
// package level state. Construct one per simulation.
type Engine struct {
	logger  *zap.Logger
	cfg     Config
	router  *bus.Router
	adapter *market.Adapter
	store   market.Store
	cal     *calendar.Calendar
	driver  *Driver

	stocks  *ledger.Stock
	futures *ledger.Future
	funds   *ledger.Fund

	stockEx  *stock.Exchange
	futureEx *future.Exchange
	fundEx   *fund.Exchange

	proxy    *trade.Proxy
	pipeline *risk.Pipeline
	agg      *results.Aggregator

	strat strategy.Strategy
	ctx   *strategy.Context
}

func NewEngine(logger *zap.Logger, store market.Store, rates *market.RateTable,
	cfg Config, strat strategy.Strategy, rules []risk.Rule) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	days, err := store.TradingCalendar(cfg.StartDate, cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("load trading calendar: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %s .. %s", ErrNoTradingDays,
			cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"))
	}
	cal, err := calendar.New(days)
	if err != nil {
		return nil, fmt.Errorf("build calendar: %w", err)
	}

	e := &Engine{
		logger:  logger,
		cfg:     cfg,
		router:  bus.NewRouter(logger),
		adapter: market.NewAdapter(logger, store, cfg.minuteMode()),
		store:   store,
		cal:     cal,
		strat:   strat,
	}

	if cfg.StockStartingCash.IsPos() {
		e.stocks = ledger.NewStock(logger, e.router, "stock",
			cfg.StockStartingCash, cfg.CommissionMultiplier)
		e.stockEx = stock.NewExchange(logger, e.router, e.adapter, e.stocks,
			cfg.Slippage, true)
	}
	if cfg.FutureStartingCash.IsPos() {
		e.futures = ledger.NewFuture(logger, e.router, e.adapter, rates, "future",
			cfg.FutureStartingCash, cfg.CommissionMultiplier, cfg.MarginMultiplier)
		e.futureEx = future.NewExchange(logger, e.router, e.adapter, e.futures,
			cfg.SlippageTicks, true)
	}
	if cfg.FundStartingCash.IsPos() {
		e.funds = ledger.NewFund(logger, e.router, "fund", cfg.FundStartingCash)
		e.fundEx = fund.NewExchange(logger, e.router, e.adapter, cal, e.funds,
			cfg.FundConfirmLag)
	}

	if cfg.minuteMode() {
		if e.stockEx != nil {
			e.stockEx.SetSession(exchangeSession(calendar.StockSessionMinutes()))
		}
		if e.futureEx != nil {
			evening, smallHours := calendar.FutureNightSessionMinutes()
			night := append(append([]string(nil), evening...), smallHours...)
			e.futureEx.SetSessions(
				exchangeSession(calendar.FutureDaySessionMinutes()),
				exchangeSession(night))
		}
	}

	e.proxy = trade.NewProxy(logger, e.router, e.adapter, e.stocks, e.futures, e.funds)
	var sc, fc, uc trade.Canceller
	if e.stockEx != nil {
		sc = e.stockEx
	}
	if e.futureEx != nil {
		fc = e.futureEx
	}
	if e.fundEx != nil {
		uc = e.fundEx
	}
	e.proxy.SetCancellers(sc, fc, uc)

	var benchmark *results.Benchmark
	if cfg.Benchmark != "" {
		benchmark = results.NewBenchmark(logger, e.adapter, cfg.Benchmark)
	}
	e.agg = results.NewAggregator(logger, e.router, e.stocks, e.futures, e.funds, benchmark)
	e.proxy.SetDrawer(e.agg)

	e.pipeline = risk.NewPipeline(logger, e.router, e)
	if err := e.pipeline.Load(rules); err != nil {
		return nil, err
	}
	if e.stockEx != nil {
		e.stockEx.SetVerifier(e.pipeline)
	}
	if e.futureEx != nil {
		e.futureEx.SetVerifier(e.pipeline)
	}
	if e.fundEx != nil {
		e.fundEx.SetVerifier(e.pipeline)
	}

	e.driver = NewDriver(cal, cfg, e.futures != nil)

	e.ctx = &strategy.Context{
		Trader:  e.proxy,
		Market:  e.adapter,
		Scratch: make(map[string]any),
	}
	return e, nil
}

// Stop requests an early finish; results cover the days already run.
func (e *Engine) Stop() { e.driver.Stop() }

func (e *Engine) Proxy() *trade.Proxy          { return e.proxy }
func (e *Engine) Aggregator() *results.Aggregator { return e.agg }
func (e *Engine) Calendar() *calendar.Calendar { return e.cal }

// Run walks the configured range and returns the final report. A strategy
// or risk rule failure aborts the walk; the report still covers the days
// that completed, alongside the error.
func (e *Engine) Run(ctx context.Context) (results.Report, error) {
	started := time.Now()

	e.router.Publish(bus.Event{Kind: bus.RiskControlInitEvent})
	runErr := e.pipeline.Err()
	if runErr == nil {
		if err := e.strat.Initialize(e.ctx); err != nil {
			runErr = &strategy.CallbackError{Phase: "initialize", Err: err}
		}
	}

	if runErr == nil {
		runErr = e.driver.Run(func(t Tick) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.step(t)
		})
	}

	e.router.Publish(bus.Event{Kind: bus.CalculateResultEvent})

	report := results.Compute(e.agg)
	report.RunID = utility.GetRunID().String()
	report.CustomTag = e.cfg.CustomTag
	report.TimeConsume = time.Since(started)

	if runErr != nil {
		e.logger.Error("run aborted, results are partial",
			zap.Error(runErr),
			zap.Time("trade_date", e.adapter.TradeDate()))
	}
	return report, runErr
}

func (e *Engine) step(t Tick) error {
	switch t.Kind {
	case TickNewDate:
		return e.newDate(t)
	case TickDayStart:
		return e.dayStart(t)
	case TickBar:
		return e.bar(t)
	case TickEndDate:
		return e.endDate(t)
	}
	return nil
}

func (e *Engine) newDate(t Tick) error {
	e.adapter.SetClock(t.Now, t.TradeDate, "")
	e.refreshContext(t)
	e.agg.SetDate(t.TradeDate)

	for _, l := range e.ledgers() {
		l.OnNewDay(t.TradeDate)
	}
	e.router.Publish(bus.Event{Kind: bus.NewDateEvent, Time: t.Now, TradeDate: t.TradeDate})

	e.router.Publish(bus.Event{Kind: bus.RiskControlBeforeEvent, TradeDate: t.TradeDate})
	if err := e.pipeline.Err(); err != nil {
		return err
	}
	if err := e.strat.BeforeTrading(e.ctx); err != nil {
		return &strategy.CallbackError{Phase: "before_trading", Err: err}
	}
	return nil
}

func (e *Engine) dayStart(t Tick) error {
	e.router.Publish(bus.Event{Kind: bus.DayStartEvent, Time: t.Now, TradeDate: t.TradeDate})
	e.router.Publish(bus.Event{Kind: bus.RiskControlDayBeforeEvent, TradeDate: t.TradeDate})
	if err := e.pipeline.Err(); err != nil {
		return err
	}

	if e.stockEx != nil {
		e.stockEx.DayStart(t.TradeDate)
	}
	if e.fundEx != nil {
		e.fundEx.DayStart(t.TradeDate)
	}
	e.applyFundActions(t.TradeDate)
	return nil
}

func (e *Engine) bar(t Tick) error {
	e.adapter.SetClock(t.Now, t.TradeDate, t.Minute)
	e.refreshContext(t)

	if e.cfg.MatchingType == MatchNextOpen {
		// the whole strategy pass sees opens: orders left from the
		// previous bar and orders submitted in handle_bar cross at this
		// bar's open, then the quotation replays at the close
		e.adapter.SetLastField(common.LastOpen)
		defer e.adapter.SetLastField(common.LastClose)

		e.router.Publish(bus.Event{Kind: bus.HandleBarEvent, Time: t.Now, TradeDate: t.TradeDate})
		e.router.Publish(bus.Event{Kind: bus.RiskControlHandleBarEvent, TradeDate: t.TradeDate})
		if err := e.pipeline.Err(); err != nil {
			return err
		}
		if err := e.strat.HandleBar(e.ctx); err != nil {
			return &strategy.CallbackError{Phase: "handle_bar", Err: err}
		}

		e.adapter.SetLastField(common.LastClose)
		e.router.Publish(bus.Event{Kind: bus.HandleBarEvent, Time: t.Now, TradeDate: t.TradeDate})
		return nil
	}

	e.router.Publish(bus.Event{Kind: bus.HandleBarEvent, Time: t.Now, TradeDate: t.TradeDate})

	e.router.Publish(bus.Event{Kind: bus.RiskControlHandleBarEvent, TradeDate: t.TradeDate})
	if err := e.pipeline.Err(); err != nil {
		return err
	}
	if err := e.strat.HandleBar(e.ctx); err != nil {
		return &strategy.CallbackError{Phase: "handle_bar", Err: err}
	}
	return nil
}

func (e *Engine) endDate(t Tick) error {
	e.adapter.SetClock(t.Now, t.TradeDate, "")
	e.refreshContext(t)

	if e.stockEx != nil {
		e.stockEx.CancelAll()
	}
	if e.futureEx != nil {
		e.futureEx.CancelAll()
	}
	e.router.Publish(bus.Event{Kind: bus.EndDateEvent, Time: t.Now, TradeDate: t.TradeDate})

	e.router.Publish(bus.Event{Kind: bus.RiskControlAfterEvent, TradeDate: t.TradeDate})
	if err := e.pipeline.Err(); err != nil {
		return err
	}
	if err := e.strat.AfterTrading(e.ctx); err != nil {
		return &strategy.CallbackError{Phase: "after_trading", Err: err}
	}

	if e.futures != nil {
		e.futures.Settle(t.TradeDate)
		e.futures.Deliver(t.TradeDate)
		e.futures.CheckBurned()
	}
	for _, l := range e.ledgers() {
		l.OnEndDay()
	}
	e.agg.SaveDaily(t.TradeDate)
	return nil
}

// applyFundActions delivers the day's fund corporate actions and
// refreshes navs for held positions.
func (e *Engine) applyFundActions(tradeDate time.Time) {
	if e.funds == nil {
		return
	}
	if divs, err := e.store.FundDividends(tradeDate); err == nil {
		for _, d := range divs {
			if _, held := e.funds.Position(d.Instrument); held {
				e.funds.ApplyDividend(d)
			}
		}
	}
	if splits, err := e.store.FundSplits(tradeDate); err == nil {
		for _, sp := range splits {
			if _, held := e.funds.Position(sp.Instrument); held {
				e.funds.ApplySplit(sp)
			}
		}
	}
	for _, inst := range heldInstruments(e.funds.Positions()) {
		nav, err := e.store.FundNav(inst, tradeDate)
		if err != nil || nav.IsZero() {
			continue
		}
		bar := common.Bar{Instrument: inst, Close: nav, TradeDate: tradeDate}
		e.router.Publish(bus.Event{Kind: bus.FundQuoteChangeEvent, Bar: &bar})
	}
}

func (e *Engine) refreshContext(t Tick) {
	e.ctx.Now = t.Now
	e.ctx.TradeDate = t.TradeDate
	e.ctx.Minute = t.Minute
}

func (e *Engine) ledgers() []ledger.Ledger {
	var out []ledger.Ledger
	if e.stocks != nil {
		out = append(out, e.stocks)
	}
	if e.futures != nil {
		out = append(out, e.futures)
	}
	if e.funds != nil {
		out = append(out, e.funds)
	}
	return out
}

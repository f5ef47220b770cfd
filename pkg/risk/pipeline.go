package risk

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
)

// AccountView exposes one ledger to rule expressions with plain floats.
type AccountView struct {
	Available   float64
	Frozen      float64
	Margin      float64
	MarketValue float64
	TotalEquity float64
	DailyPnL    float64
	Burned      bool
}

// OrderView is the candidate order under order_verify. It is nil for
// every other hook.
type OrderView struct {
	ID         string
	Instrument string
	Buy        bool
	Open       bool
	CloseToday bool
	Price      float64
	Quantity   int64
	Amount     float64
	Units      float64
}

// Env is the expression environment. Absent accounts stay nil and rules
// touching them fail, which surfaces a configuration mistake early.
type Env struct {
	TradeDate string
	Minute    string

	Stock  *AccountView
	Future *AccountView
	Fund   *AccountView

	Order *OrderView
}

// Provider snapshots the current env at every dispatch.
type Provider interface {
	Snapshot() Env
}

type compiledRule struct {
	rule     Rule
	programs map[string]*vm.Program
}

// Pipeline holds the compiled catalog and runs it against lifecycle
// events. The first fatal rule error latches and is reported through
// Err.
type Pipeline struct {
	logger   *zap.Logger
	provider Provider
	rules    []*compiledRule
	fatal    error
}

func NewPipeline(logger *zap.Logger, router *bus.Router, provider Provider) *Pipeline {
	p := &Pipeline{logger: logger, provider: provider}

	router.Subscribe(bus.RiskControlInitEvent, p.dispatchHook(HookInit))
	router.Subscribe(bus.RiskControlBeforeEvent, p.dispatchHook(HookBeforeTrading))
	router.Subscribe(bus.RiskControlDayBeforeEvent, p.dispatchHook(HookDayBefore))
	router.Subscribe(bus.RiskControlAfterEvent, p.dispatchHook(HookAfterTrading))
	router.Subscribe(bus.RiskControlHandleBarEvent, p.dispatchHook(HookHandleBar))
	router.Subscribe(bus.RiskControlReloadEvent, p.onReload)
	return p
}

// onReload swaps the catalog for the one at the path in the event
// message. A load or compile failure latches like any rule failure.
func (p *Pipeline) onReload(ev bus.Event) {
	if ev.Message == "" {
		return
	}
	rules, err := LoadRules(ev.Message)
	if err != nil {
		p.fatal = err
		return
	}
	if err := p.Reload(rules); err != nil {
		p.fatal = err
	}
}

// Load compiles the catalog. Any compile failure rejects the whole load.
func (p *Pipeline) Load(rules []Rule) error {
	compiled := make([]*compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := &compiledRule{rule: r, programs: make(map[string]*vm.Program, len(r.Hooks))}
		for hook, src := range r.Hooks {
			opts := []expr.Option{expr.Env(Env{})}
			if hook == HookOrderVerify {
				opts = append(opts, expr.AsBool())
			}
			prog, err := expr.Compile(src, opts...)
			if err != nil {
				return &RuleError{RuleID: r.ID, RuleName: r.Name, Hook: hook, Err: err}
			}
			cr.programs[hook] = prog
		}
		compiled = append(compiled, cr)
	}
	p.rules = compiled
	return nil
}

// Reload swaps the catalog mid-run.
func (p *Pipeline) Reload(rules []Rule) error {
	if err := p.Load(rules); err != nil {
		return err
	}
	p.logger.Info("risk catalog reloaded", zap.Int("rules", len(rules)))
	return nil
}

// Err reports the first fatal rule failure seen during dispatch.
func (p *Pipeline) Err() error { return p.fatal }

func (p *Pipeline) dispatchHook(hook string) bus.Handler {
	return func(bus.Event) { p.Dispatch(hook) }
}

// Dispatch runs one hook across the catalog in load order.
func (p *Pipeline) Dispatch(hook string) {
	if p.fatal != nil {
		return
	}
	env := p.provider.Snapshot()
	for _, cr := range p.rules {
		prog, ok := cr.programs[hook]
		if !ok {
			continue
		}
		if _, err := expr.Run(prog, env); err != nil {
			p.fail(cr.rule, hook, err)
			return
		}
	}
}

// VerifyOrder runs every order_verify hook against the candidate. The
// first false vetoes and names the rule; the chain stops there.
func (p *Pipeline) VerifyOrder(o *common.Order) (bool, string) {
	env := p.provider.Snapshot()
	env.Order = viewOf(o)
	for _, cr := range p.rules {
		prog, ok := cr.programs[HookOrderVerify]
		if !ok {
			continue
		}
		out, err := expr.Run(prog, env)
		if err != nil {
			p.fail(cr.rule, HookOrderVerify, err)
			return false, cr.rule.Name
		}
		if pass, _ := out.(bool); !pass {
			return false, cr.rule.Name
		}
	}
	return true, ""
}

func (p *Pipeline) fail(r Rule, hook string, err error) {
	p.fatal = &RuleError{RuleID: r.ID, RuleName: r.Name, Hook: hook, Err: err}
	p.logger.Error("risk rule failed", zap.Error(p.fatal))
}

func viewOf(o *common.Order) *OrderView {
	return &OrderView{
		ID:         o.ID,
		Instrument: o.Instrument,
		Buy:        o.Side == common.SideBuy,
		Open:       o.Effect == common.EffectOpen,
		CloseToday: o.CloseToday,
		Price:      o.Price.InexactFloat64(),
		Quantity:   o.Quantity,
		Amount:     o.Amount.InexactFloat64(),
		Units:      o.Units.InexactFloat64(),
	}
}

// Package risk evaluates user-defined control rules over the running
// backtest. Rules are expressions compiled once at load; the order_verify
// hook can veto order submissions.
package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Hook names, mirroring the strategy lifecycle plus the order gate.
const (
	HookInit          = "init"
	HookBeforeTrading = "before_trading"
	HookDayBefore     = "day_before"
	HookAfterTrading  = "after_trading"
	HookHandleBar     = "handle_bar"
	HookOrderVerify   = "order_verify"
)

// Rule is one catalog entry. Hooks maps hook names to expression
// sources; absent hooks simply do not fire.
type Rule struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	UpdateTime string            `yaml:"update_time"`
	Hooks      map[string]string `yaml:"hooks"`
}

// RuleError is fatal: a rule that cannot compile or evaluate invalidates
// the whole run.
type RuleError struct {
	RuleID   string
	RuleName string
	Hook     string
	Err      error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("risk rule %s (%s) hook %s: %v", e.RuleName, e.RuleID, e.Hook, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// LoadRules reads a YAML rule catalog.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule catalog: %w", err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rule catalog: %w", err)
	}
	return rules, nil
}

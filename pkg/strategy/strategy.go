// Package strategy defines the user-code contract: four lifecycle
// callbacks around a context carrying the trading surface and market
// data.
package strategy

import (
	"fmt"
	"time"

	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/trade"
)

// Strategy is implemented by user code. Any returned error aborts the
// run; results up to that day are still produced.
type Strategy interface {
	Initialize(ctx *Context) error
	BeforeTrading(ctx *Context) error
	HandleBar(ctx *Context) error
	AfterTrading(ctx *Context) error
}

// Context is rebuilt by the engine before every callback.
type Context struct {
	Trader *trade.Proxy
	Market *market.Adapter

	Now       time.Time
	TradeDate time.Time
	Minute    string

	// Scratch persists across callbacks for strategy-private state.
	Scratch map[string]any
}

// CallbackError marks which lifecycle phase user code failed in.
type CallbackError struct {
	Phase string
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Phase, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Noop satisfies Strategy with empty callbacks so user strategies can
// embed it and override what they need.
type Noop struct{}

func (Noop) Initialize(*Context) error    { return nil }
func (Noop) BeforeTrading(*Context) error { return nil }
func (Noop) HandleBar(*Context) error     { return nil }
func (Noop) AfterTrading(*Context) error  { return nil }

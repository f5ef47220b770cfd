package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

var (
	ErrBadConfig     = errors.New("bad run configuration")
	ErrNoTradingDays = errors.New("no trading days in range")
)

const (
	FrequencyDaily  = "1d"
	FrequencyMinute = "1m"

	// MatchSameClose fills against the close of the bar the order was
	// submitted in. MatchNextOpen leaves uncrossed orders working and
	// fills them at the next bar's open.
	MatchSameClose = 0
	MatchNextOpen  = 1

	// DateTrading walks trading days only. DateNatural walks every
	// calendar day; non-trading days tick without venue lifecycle events.
	DateTrading = 0
	DateNatural = 1
)

// Config enumerates one run. An account ledger exists only when its
// starting cash is positive.
type Config struct {
	StartDate time.Time
	EndDate   time.Time
	Frequency string

	StockStartingCash  fixed.Point
	FutureStartingCash fixed.Point
	FundStartingCash   fixed.Point

	Benchmark    string
	MatchingType int
	DateType     int

	Slippage      fixed.Point
	SlippageTicks int64

	CommissionMultiplier fixed.Point
	MarginMultiplier     fixed.Point

	FundConfirmLag   int
	FutureNightTrade bool

	CustomTag string
}

func (c *Config) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrBadConfig)
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrBadConfig,
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	if c.Frequency == "" {
		c.Frequency = FrequencyDaily
	}
	if c.Frequency != FrequencyDaily && c.Frequency != FrequencyMinute {
		return fmt.Errorf("%w: unknown frequency %q", ErrBadConfig, c.Frequency)
	}
	if c.MatchingType != MatchSameClose && c.MatchingType != MatchNextOpen {
		return fmt.Errorf("%w: unknown matching type %d", ErrBadConfig, c.MatchingType)
	}
	if c.DateType != DateTrading && c.DateType != DateNatural {
		return fmt.Errorf("%w: unknown date type %d", ErrBadConfig, c.DateType)
	}
	if !c.StockStartingCash.IsPos() && !c.FutureStartingCash.IsPos() && !c.FundStartingCash.IsPos() {
		return fmt.Errorf("%w: no account has starting cash", ErrBadConfig)
	}
	if c.Slippage.IsNeg() || c.SlippageTicks < 0 {
		return fmt.Errorf("%w: negative slippage", ErrBadConfig)
	}
	if c.CommissionMultiplier.IsZero() {
		c.CommissionMultiplier = fixed.One
	}
	if c.MarginMultiplier.IsZero() {
		c.MarginMultiplier = fixed.One
	}
	if c.FundConfirmLag < 1 {
		c.FundConfirmLag = 1
	}
	return nil
}

func (c *Config) minuteMode() bool { return c.Frequency == FrequencyMinute }

// barMinute is the emission timestamp of the single daily-mode bar.
func (c *Config) barMinute() string {
	if c.MatchingType == MatchNextOpen {
		return "09:30"
	}
	return "15:00"
}

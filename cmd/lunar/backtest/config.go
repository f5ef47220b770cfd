package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lunarquant/lunar/pkg/engine"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// fileConfig is the yaml run description. Paths resolve relative to the
// working directory.
type fileConfig struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Frequency string `yaml:"frequency"`

	StockStartingCash  float64 `yaml:"stock_starting_cash"`
	FutureStartingCash float64 `yaml:"future_starting_cash"`
	FundStartingCash   float64 `yaml:"fund_starting_cash"`

	Benchmark    string `yaml:"benchmark"`
	MatchingType int    `yaml:"matching_type"`
	DateType     int    `yaml:"date_type"`

	Slippage      float64 `yaml:"slippage"`
	SlippageTicks int64   `yaml:"slippage_ticks"`

	CommissionMultiplier float64 `yaml:"commission_multiplier"`
	MarginMultiplier     float64 `yaml:"margin_multiplier"`

	FundConfirmLag   int    `yaml:"fund_confirm_lag"`
	FutureNightTrade bool   `yaml:"future_night_trade"`
	CustomTag        string `yaml:"custom_tag"`

	MarketData string `yaml:"market_data"` // duckdb file with bars and masters
	BarDir     string `yaml:"bar_dir"`     // optional packed-bar cache directory
	RateTable  string `yaml:"rate_table"`  // futures commission schedule json
	RiskRules  string `yaml:"risk_rules"`  // optional rule catalog yaml
	Results    string `yaml:"results"`     // sqlite output file
	LogFile    string `yaml:"log_file"`    // optional; json with rotation

	Advisor advisorConfig `yaml:"advisor"`
}

type advisorConfig struct {
	Instrument string  `yaml:"instrument"`
	Window     int     `yaml:"window"`
	Weight     float64 `yaml:"weight"`
}

func loadConfig(path string) (fileConfig, error) {
	var c fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	if c.MarketData == "" {
		return c, fmt.Errorf("config: market_data is required")
	}
	if c.Advisor.Instrument == "" {
		return c, fmt.Errorf("config: advisor.instrument is required")
	}
	if c.Advisor.Window == 0 {
		c.Advisor.Window = 20
	}
	if c.Advisor.Weight == 0 {
		c.Advisor.Weight = 0.95
	}
	return c, nil
}

func (c fileConfig) engineConfig() (engine.Config, error) {
	start, err := time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("config: bad start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", c.EndDate)
	if err != nil {
		return engine.Config{}, fmt.Errorf("config: bad end_date: %w", err)
	}
	return engine.Config{
		StartDate:            start,
		EndDate:              end,
		Frequency:            c.Frequency,
		StockStartingCash:    fixed.FromFloat64(c.StockStartingCash),
		FutureStartingCash:   fixed.FromFloat64(c.FutureStartingCash),
		FundStartingCash:     fixed.FromFloat64(c.FundStartingCash),
		Benchmark:            c.Benchmark,
		MatchingType:         c.MatchingType,
		DateType:             c.DateType,
		Slippage:             fixed.FromFloat64(c.Slippage),
		SlippageTicks:        c.SlippageTicks,
		CommissionMultiplier: fixed.FromFloat64(c.CommissionMultiplier),
		MarginMultiplier:     fixed.FromFloat64(c.MarginMultiplier),
		FundConfirmLag:       c.FundConfirmLag,
		FutureNightTrade:     c.FutureNightTrade,
		CustomTag:            c.CustomTag,
	}, nil
}

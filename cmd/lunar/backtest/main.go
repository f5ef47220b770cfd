package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lunarquant/lunar/cmd/lunar/advisor"
	"github.com/lunarquant/lunar/internal/dbg"
	"github.com/lunarquant/lunar/pkg/engine"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/market/barfile"
	"github.com/lunarquant/lunar/pkg/market/duckdb"
	"github.com/lunarquant/lunar/pkg/results"
	"github.com/lunarquant/lunar/pkg/risk"
)

func main() {
	configPath := flag.String("config", "backtest.yaml", "run configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("configuration error", zap.Error(err))
	}

	logger := dbg.NewDevLogger()
	if cfg.LogFile != "" {
		logger = dbg.NewProdLogger(cfg.LogFile, zapcore.InfoLevel)
	}
	defer func() { _ = logger.Sync() }()

	runCfg, err := cfg.engineConfig()
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	duck := duckdb.NewStore(cfg.MarketData)
	if err := duck.Connect(); err != nil {
		logger.Fatal("error opening market data store", zap.Error(err))
	}
	defer duck.Close()

	var store market.Store = duck
	if cfg.BarDir != "" {
		cache := barfile.NewCache(duck, cfg.BarDir)
		defer cache.Close()
		store = cache
		logger.Info("packed-bar cache enabled", zap.String("dir", cfg.BarDir))
	}

	var rates *market.RateTable
	if cfg.RateTable != "" {
		rates, err = market.LoadRateTable(cfg.RateTable)
		if err != nil {
			logger.Fatal("error loading rate table", zap.Error(err))
		}
	}

	var rules []risk.Rule
	if cfg.RiskRules != "" {
		rules, err = risk.LoadRules(cfg.RiskRules)
		if err != nil {
			logger.Fatal("error loading risk rules", zap.Error(err))
		}
	}

	strat := advisor.NewStrategy(logger,
		cfg.Advisor.Instrument, cfg.Advisor.Window, cfg.Advisor.Weight)

	e, err := engine.NewEngine(logger, store, rates, runCfg, strat, rules)
	if err != nil {
		logger.Fatal("error building engine", zap.Error(err))
	}

	report, runErr := e.Run(ctx)
	report.Print(logger)

	if cfg.Results != "" {
		sink, err := results.OpenSink(cfg.Results)
		if err != nil {
			logger.Fatal("error opening result sink", zap.Error(err))
		}
		defer func() { _ = sink.Close() }()
		if err := sink.Save(context.Background(), report.RunID, report, e.Aggregator()); err != nil {
			logger.Error("error saving results", zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Error("run finished with error", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("done")
}

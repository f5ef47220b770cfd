package results

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/lunarquant/lunar/pkg/common"
)

// Sink persists a finished run into a sqlite file. Every table is keyed by
// run_id so one file can hold many runs.
type Sink struct {
	db *sql.DB
}

func OpenSink(path string) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	s := &Sink{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) Close() error { return s.db.Close() }

// DB exposes the underlying handle for ad hoc queries over saved runs.
func (s *Sink) DB() *sql.DB { return s.db }

func (s *Sink) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS daily_account (
		run_id TEXT, trade_date TEXT,
		available REAL, frozen REAL, margin REAL, market_value REAL,
		holding_pnl REAL, realized_pnl REAL, commissions REAL,
		total_equity REAL, daily_pnl REAL, add_profit REAL,
		PRIMARY KEY (run_id, trade_date)
	);
	CREATE TABLE IF NOT EXISTS daily_positions (
		run_id TEXT, trade_date TEXT, instrument TEXT, book TEXT,
		quantity REAL, cost_price REAL, last_price REAL,
		market_value REAL, holding_pnl REAL,
		PRIMARY KEY (run_id, trade_date, instrument, book)
	);
	CREATE TABLE IF NOT EXISTS daily_trades (
		run_id TEXT, trade_id TEXT, order_id TEXT, trade_date TEXT,
		instrument TEXT, direction TEXT, offset TEXT,
		price REAL, quantity INTEGER, amount REAL, commission REAL,
		PRIMARY KEY (run_id, trade_id)
	);
	CREATE TABLE IF NOT EXISTS daily_profit (
		run_id TEXT, trade_date TEXT,
		daily_return REAL, strategy_profit REAL,
		benchmark_return REAL, benchmark_profit REAL, excess_profit REAL,
		PRIMARY KEY (run_id, trade_date)
	);
	CREATE TABLE IF NOT EXISTS draws (
		run_id TEXT, trade_date TEXT, series TEXT, value REAL
	);
	CREATE TABLE IF NOT EXISTS final_metrics (
		run_id TEXT PRIMARY KEY, custom_tag TEXT,
		start_date TEXT, end_date TEXT, time_consume REAL,
		initial_equity REAL, final_equity REAL, total_trades INTEGER,
		strategy_return REAL, strategy_annual_return REAL,
		benchmark_return REAL, benchmark_annual_return REAL,
		excess_profit REAL, alpha REAL, beta REAL,
		sharpe REAL, sortino REAL, information_ratio REAL, calmar REAL,
		volatility REAL, tracking_error REAL, downside_risk REAL,
		max_drawdown REAL
	);`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Save writes the entire run under one run id inside a single transaction.
func (s *Sink) Save(ctx context.Context, runID string, report Report, a *Aggregator) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const dateLayout = "2006-01-02"

	for _, snap := range a.Snapshots() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO daily_account VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			runID, snap.TradeDate.Format(dateLayout),
			snap.Available.InexactFloat64(), snap.Frozen.InexactFloat64(),
			snap.Margin.InexactFloat64(), snap.MarketValue.InexactFloat64(),
			snap.HoldingPnL.InexactFloat64(), snap.RealizedPnL.InexactFloat64(),
			snap.Commissions.InexactFloat64(), snap.TotalEquity.InexactFloat64(),
			snap.DailyPnL.InexactFloat64(), snap.AddProfit.InexactFloat64(),
		); err != nil {
			return fmt.Errorf("daily_account: %w", err)
		}
	}

	for _, row := range a.Positions() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO daily_positions VALUES (?,?,?,?,?,?,?,?,?)`,
			runID, row.TradeDate.Format(dateLayout), row.Instrument, row.Book,
			row.Quantity, row.CostPrice, row.LastPrice, row.MarketValue, row.HoldingPnL,
		); err != nil {
			return fmt.Errorf("daily_positions: %w", err)
		}
	}

	for _, t := range a.Trades() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO daily_trades VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			runID, t.ID, t.OrderID, t.TradeDate.Format(dateLayout),
			t.Instrument, t.Side.String(), offsetOf(t),
			t.Price.InexactFloat64(), t.Quantity, t.Amount.InexactFloat64(),
			t.Commission.InexactFloat64(),
		); err != nil {
			return fmt.Errorf("daily_trades: %w", err)
		}
	}

	for _, p := range a.Profits() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO daily_profit VALUES (?,?,?,?,?,?,?)`,
			runID, p.TradeDate.Format(dateLayout),
			nullable(p.DailyReturn), nullable(p.StrategyProfit),
			nullable(p.BenchmarkReturn), nullable(p.BenchmarkProfit),
			nullable(p.ExcessProfit),
		); err != nil {
			return fmt.Errorf("daily_profit: %w", err)
		}
	}

	for _, d := range a.Draws() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO draws VALUES (?,?,?,?)`,
			runID, d.TradeDate.Format(dateLayout), d.Series, nullable(d.Value),
		); err != nil {
			return fmt.Errorf("draws: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO final_metrics VALUES
		 (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, report.CustomTag,
		report.StartDate.Format(dateLayout), report.EndDate.Format(dateLayout),
		report.TimeConsume.Seconds(),
		report.InitialEquity.InexactFloat64(), report.FinalEquity.InexactFloat64(),
		report.TotalTrades,
		nullable(report.StrategyTotalReturn), nullable(report.StrategyAnnualReturn),
		nullable(report.BenchmarkTotalReturn), nullable(report.BenchmarkAnnualReturn),
		nullable(report.ExcessProfit), nullable(report.Alpha), nullable(report.Beta),
		nullable(report.SharpeRatio), nullable(report.SortinoRatio),
		nullable(report.InformationRatio), nullable(report.Calmar),
		nullable(report.Volatility), nullable(report.TrackingError),
		nullable(report.DownsideRisk), nullable(report.MaxDrawdown),
	); err != nil {
		return fmt.Errorf("final_metrics: %w", err)
	}

	return tx.Commit()
}

// nullable maps undefined metrics to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func offsetOf(t common.Trade) string {
	switch {
	case t.Effect == common.EffectOpen:
		return "open"
	case t.CloseToday:
		return "close_today"
	default:
		return "close"
	}
}

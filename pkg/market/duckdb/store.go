// Package duckdb serves market data out of a DuckDB file. Expected tables:
//
//	trading_calendar(market, trade_date)
//	daily_bars(instrument, trade_date, open, high, low, close, settlement,
//	           volume, limit_up, limit_down, pre_close)
//	minute_bars(... , minute)
//	instruments(id, name, class, exchange, multiplier, price_tick,
//	            margin_rate, round_lot, last_trade_date, night_trade,
//	            suspended, redeem_days)
//	margin_rates(instrument, trade_date, long_rate, short_rate, flat_rate)
//	dividends(instrument, ex_date, cash_per_share, stock_ratio, trans_ratio)
//	etf_splits(instrument, ex_date, ratio) / fund_splits(...)
//	fund_dividends(instrument, ex_date, cash_per_unit)
//	fund_nav(instrument, trade_date, nav)
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type Store struct {
	dataSourceName string
	db             *sql.DB
}

func NewStore(dataSourceName string) *Store {
	return &Store{
		dataSourceName: dataSourceName,
	}
}

func (s *Store) Connect() error {
	db, err := sql.Open("duckdb", s.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) TradingCalendar(start, end time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT trade_date FROM trading_calendar
		 WHERE market = 'SH' AND trade_date BETWEEN ? AND ?
		 ORDER BY trade_date`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trading calendar: %w", err)
	}
	defer closeRows(rows)

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trading calendar: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *Store) DailyBar(instrument string, date time.Time) (common.Bar, error) {
	row := s.db.QueryRow(
		`SELECT open, high, low, close, settlement, volume, limit_up, limit_down, pre_close
		 FROM daily_bars WHERE instrument = ? AND trade_date = ?`, instrument, date)
	return scanBar(row, instrument, date)
}

func (s *Store) MinuteBar(instrument string, date time.Time, minute string) (common.Bar, error) {
	row := s.db.QueryRow(
		`SELECT open, high, low, close, settlement, volume, limit_up, limit_down, pre_close
		 FROM minute_bars WHERE instrument = ? AND trade_date = ? AND minute = ?`,
		instrument, date, minute)
	return scanBar(row, instrument, date)
}

func scanBar(row *sql.Row, instrument string, date time.Time) (common.Bar, error) {
	var open, high, low, closing, settlement, limitUp, limitDown, preClose float64
	var volume int64
	err := row.Scan(&open, &high, &low, &closing, &settlement, &volume,
		&limitUp, &limitDown, &preClose)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Bar{}, market.ErrNoBar
	}
	if err != nil {
		return common.Bar{}, fmt.Errorf("scan bar: %w", err)
	}
	return common.Bar{
		Instrument: instrument,
		Open:       fixed.FromFloat64(open),
		High:       fixed.FromFloat64(high),
		Low:        fixed.FromFloat64(low),
		Close:      fixed.FromFloat64(closing),
		Settlement: fixed.FromFloat64(settlement),
		PreClose:   fixed.FromFloat64(preClose),
		LimitUp:    fixed.FromFloat64(limitUp),
		LimitDown:  fixed.FromFloat64(limitDown),
		Volume:     volume,
		TradeDate:  date,
	}, nil
}

func (s *Store) Instrument(id string) (common.Instrument, error) {
	row := s.db.QueryRow(
		`SELECT name, class, exchange, multiplier, price_tick, margin_rate,
		        round_lot, last_trade_date, night_trade, suspended, redeem_days
		 FROM instruments WHERE id = ?`, id)

	var inst common.Instrument
	var class int
	var tick, marginRate float64
	var lastTrade sql.NullTime
	err := row.Scan(&inst.Name, &class, &inst.Exchange, &inst.Multiplier,
		&tick, &marginRate, &inst.RoundLot, &lastTrade,
		&inst.NightTrade, &inst.Suspended, &inst.RedeemDays)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Instrument{}, market.ErrUnknownInstrument
	}
	if err != nil {
		return common.Instrument{}, fmt.Errorf("scan instrument: %w", err)
	}
	inst.ID = id
	inst.Class = common.AssetClass(class)
	inst.PriceTick = fixed.FromFloat64(tick)
	inst.MarginRate = fixed.FromFloat64(marginRate)
	if lastTrade.Valid {
		inst.LastTradeDate = lastTrade.Time
	}
	return inst, nil
}

func (s *Store) MarginRate(id string, date time.Time) (market.MarginRate, error) {
	row := s.db.QueryRow(
		`SELECT long_rate, short_rate, flat_rate FROM margin_rates
		 WHERE instrument = ? AND trade_date = ?`, id, date)

	var long, short, flat float64
	err := row.Scan(&long, &short, &flat)
	if errors.Is(err, sql.ErrNoRows) {
		return market.MarginRate{}, nil
	}
	if err != nil {
		return market.MarginRate{}, fmt.Errorf("scan margin rate: %w", err)
	}
	return market.MarginRate{
		Long:  fixed.FromFloat64(long),
		Short: fixed.FromFloat64(short),
		Flat:  fixed.FromFloat64(flat),
		Known: true,
	}, nil
}

func (s *Store) Dividends(date time.Time) ([]market.Dividend, error) {
	rows, err := s.db.Query(
		`SELECT instrument, cash_per_share, stock_ratio, trans_ratio
		 FROM dividends WHERE ex_date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("query dividends: %w", err)
	}
	defer closeRows(rows)

	var out []market.Dividend
	for rows.Next() {
		var d market.Dividend
		var cash, stock, trans float64
		if err := rows.Scan(&d.Instrument, &cash, &stock, &trans); err != nil {
			return nil, fmt.Errorf("scan dividend: %w", err)
		}
		d.CashPerShare = fixed.FromFloat64(cash)
		d.StockRatio = fixed.FromFloat64(stock)
		d.TransRatio = fixed.FromFloat64(trans)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ETFSplits(date time.Time) ([]market.Split, error) {
	return s.splits("etf_splits", date)
}

func (s *Store) FundSplits(date time.Time) ([]market.Split, error) {
	return s.splits("fund_splits", date)
}

func (s *Store) splits(table string, date time.Time) ([]market.Split, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT instrument, ratio FROM %s WHERE ex_date = ?`, table), date)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer closeRows(rows)

	var out []market.Split
	for rows.Next() {
		var sp market.Split
		var ratio float64
		if err := rows.Scan(&sp.Instrument, &ratio); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		sp.Ratio = fixed.FromFloat64(ratio)
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) FundDividends(date time.Time) ([]market.FundDividend, error) {
	rows, err := s.db.Query(
		`SELECT instrument, cash_per_unit FROM fund_dividends WHERE ex_date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("query fund dividends: %w", err)
	}
	defer closeRows(rows)

	var out []market.FundDividend
	for rows.Next() {
		var d market.FundDividend
		var cash float64
		if err := rows.Scan(&d.Instrument, &cash); err != nil {
			return nil, fmt.Errorf("scan fund dividend: %w", err)
		}
		d.CashPerUnit = fixed.FromFloat64(cash)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) FundNav(id string, date time.Time) (fixed.Point, error) {
	row := s.db.QueryRow(
		`SELECT nav FROM fund_nav WHERE instrument = ? AND trade_date = ?`, id, date)
	var nav float64
	err := row.Scan(&nav)
	if errors.Is(err, sql.ErrNoRows) {
		return fixed.Zero, market.ErrNoBar
	}
	if err != nil {
		return fixed.Zero, fmt.Errorf("scan nav: %w", err)
	}
	return fixed.FromFloat64(nav), nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		panic(err)
	}
}

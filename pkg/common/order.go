package common

import (
	"time"

	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type OrderSide int
type OrderEffect int
type PriceType int
type OrderStatus int
type OrderOrigin int

const (
	SideBuy OrderSide = iota
	SideSell
)

const (
	EffectOpen OrderEffect = iota
	EffectClose
)

const (
	PriceMarket PriceType = iota
	PriceLimit
)

const (
	StatusActive OrderStatus = iota
	StatusFilled
	StatusCancelled
	StatusPartTradedNotQueueing
	StatusRejected
)

const (
	OriginStrategy OrderOrigin = iota
	OriginRiskControl
)

func (s OrderSide) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

func (e OrderEffect) String() string {
	if e == EffectOpen {
		return "open"
	}
	return "close"
}

func (s OrderStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusPartTradedNotQueueing:
		return "part_traded_not_queueing"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// Terminal statuses are final. An order never leaves one.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected ||
		s == StatusPartTradedNotQueueing
}

type Order struct {
	ID         string      `json:"id"`
	AccountID  string      `json:"account_id"`
	Instrument string      `json:"instrument"`
	Side       OrderSide   `json:"side"`
	Effect     OrderEffect `json:"effect"`
	PriceType  PriceType   `json:"price_type"`
	Price      fixed.Point `json:"price"`
	Quantity   int64       `json:"quantity"`
	Filled     int64       `json:"filled"`
	Unfilled   int64       `json:"unfilled"`
	Status     OrderStatus `json:"status"`
	Origin     OrderOrigin `json:"origin"`
	RiskRuleID string      `json:"risk_rule_id,omitempty"`
	Message    string      `json:"message,omitempty"`

	// Fund subscriptions are amount based, redemptions unit based.
	Amount fixed.Point `json:"amount,omitempty"`
	Units  fixed.Point `json:"units,omitempty"`

	// Futures close-today accounting.
	CloseToday       bool   `json:"close_today,omitempty"`
	CloseTodayQty    int64  `json:"close_today_qty,omitempty"`
	FilledCloseToday int64  `json:"filled_close_today,omitempty"`
	ParentID         string `json:"parent_id,omitempty"`

	Retry     int       `json:"retry,omitempty"`
	TradeDate time.Time `json:"trade_date,omitzero"`
	TimeStamp time.Time `json:"ts"`
}

type Trade struct {
	ID         string      `json:"id"`
	OrderID    string      `json:"order_id"`
	AccountID  string      `json:"account_id"`
	Instrument string      `json:"instrument"`
	Side       OrderSide   `json:"side"`
	Effect     OrderEffect `json:"effect"`
	Price      fixed.Point `json:"price"`
	Quantity   int64       `json:"quantity"`
	CloseToday bool        `json:"close_today,omitempty"`
	Amount     fixed.Point `json:"amount,omitempty"`
	Units      fixed.Point `json:"units,omitempty"`
	Commission fixed.Point `json:"commission"`
	TradeDate  time.Time   `json:"trade_date"`
	TimeStamp  time.Time   `json:"ts"`
}

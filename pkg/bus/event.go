package bus

import (
	"time"

	"github.com/lunarquant/lunar/pkg/common"
)

type EventKind uint8

const (
	NewDateEvent EventKind = iota
	DayStartEvent
	HandleBarEvent
	EndDateEvent
	CalculateResultEvent

	StockOrderEvent
	StockRtnOrderEvent
	StockRtnTradeEvent
	StockOrderCancelEvent
	StockQuoteChangeEvent
	StockSubEvent
	StockUnsubEvent

	FutureOrderEvent
	FutureRtnOrderEvent
	FutureRtnTradeEvent
	FutureOrderCancelEvent
	FutureQuoteChangeEvent
	FutureSubEvent
	FutureUnsubEvent

	FundOrderEvent
	FundRtnOrderEvent
	FundRtnTradeEvent
	FundOrderCancelEvent
	FundQuoteChangeEvent
	FundSubEvent
	FundUnsubEvent

	RiskControlInitEvent
	RiskControlBeforeEvent
	RiskControlDayBeforeEvent
	RiskControlAfterEvent
	RiskControlHandleBarEvent
	RiskControlReloadEvent
)

// Event carries every payload field the bus routes. Only the fields relevant
// to the kind are set; the rest stay zero valued.
type Event struct {
	Kind       EventKind
	Time       time.Time
	TradeDate  time.Time
	Order      *common.Order
	Trade      *common.Trade
	Bar        *common.Bar
	Instrument string
	Message    string
}

type Handler func(Event)

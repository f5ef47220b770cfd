package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type AssetClass int

const (
	AssetStock AssetClass = iota
	AssetFuture
	AssetFund
	AssetIndex
)

func (c AssetClass) String() string {
	switch c {
	case AssetStock:
		return "stock"
	case AssetFuture:
		return "future"
	case AssetFund:
		return "fund"
	case AssetIndex:
		return "index"
	}
	return "unknown"
}

// Exchange codes carried in the instrument id suffix.
const (
	ExchangeSSE   = "SH"  // Shanghai stock
	ExchangeSZSE  = "SZ"  // Shenzhen stock
	ExchangeSHFE  = "SHF" // Shanghai futures
	ExchangeINE   = "INE" // Shanghai international energy
	ExchangeDCE   = "DCE" // Dalian commodity
	ExchangeCZCE  = "CZC" // Zhengzhou commodity
	ExchangeCFFEX = "CFE" // China financial futures
	ExchangeGFEX  = "GFE" // Guangzhou futures
	ExchangeFund  = "OF"  // open-end fund
)

type Instrument struct {
	ID            string      `json:"id"`
	Name          string      `json:"name,omitempty"`
	Class         AssetClass  `json:"class"`
	Exchange      string      `json:"exchange"`
	Multiplier    int64       `json:"multiplier,omitempty"`
	PriceTick     fixed.Point `json:"price_tick"`
	MarginRate    fixed.Point `json:"margin_rate"`
	RoundLot      int64       `json:"round_lot,omitempty"`
	LastTradeDate time.Time   `json:"last_trade_date,omitzero"`
	NightTrade    bool        `json:"night_trade,omitempty"`
	Suspended     bool        `json:"suspended,omitempty"`
	RedeemDays    int         `json:"redeem_days,omitempty"`
}

// SplitID decodes "TICKER.MARKET". The market suffix selects the exchange.
func SplitID(id string) (ticker, market string, err error) {
	i := strings.LastIndexByte(id, '.')
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("malformed instrument id %q", id)
	}
	return id[:i], id[i+1:], nil
}

// Root strips the delivery month from a futures ticker, AU2512 -> AU.
// Commission schedules are published per root.
func Root(id string) string {
	ticker, _, err := SplitID(id)
	if err != nil {
		ticker = id
	}
	end := 0
	for end < len(ticker) && !isDigit(ticker[end]) {
		end++
	}
	if end == 0 {
		return ticker
	}
	return ticker[:end]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// SplitsTodayYesterday reports whether the exchange keeps today-opened lots
// apart from earlier ones. SHFE and INE charge a distinct close-today
// commission; the other exchanges net the two buckets.
func SplitsTodayYesterday(exchange string) bool {
	return exchange == ExchangeSHFE || exchange == ExchangeINE
}

// IsSTAR reports the Shanghai STAR market, which trades in 200 share lots.
func IsSTAR(id string) bool {
	return strings.HasPrefix(id, "688") && strings.HasSuffix(id, "."+ExchangeSSE)
}

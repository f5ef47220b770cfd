package market

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Futures commission schedules are published per contract root. CostType 1
// charges an absolute amount per lot, CostType 2 a fraction of notional.
const (
	CostPerLot      = 1
	CostPerNotional = 2
)

type CostSchedule struct {
	CostType        int         `json:"CostType"`
	CostRate        fixed.Point `json:"CostRate"`
	CloseTdCostRate fixed.Point `json:"CloseTdCostRate"`
}

type RateTable struct {
	schedules map[string]CostSchedule
}

func NewRateTable(schedules map[string]CostSchedule) *RateTable {
	return &RateTable{schedules: schedules}
}

func LoadRateTable(path string) (*RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate table: %w", err)
	}
	var schedules map[string]CostSchedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}
	return &RateTable{schedules: schedules}, nil
}

// Commission prices one fill. closeToday selects the close-today rate when
// the schedule publishes one; multiplier scales the whole schedule
// (configuration key commission_multiplier).
func (t *RateTable) Commission(instrument string, closeToday bool,
	price fixed.Point, lots, contractMultiplier int64, multiplier fixed.Point) fixed.Point {

	sched, ok := t.schedules[common.Root(instrument)]
	if !ok {
		return fixed.Zero
	}

	rate := sched.CostRate
	if closeToday && !sched.CloseTdCostRate.IsZero() {
		rate = sched.CloseTdCostRate
	}

	var fee fixed.Point
	switch sched.CostType {
	case CostPerLot:
		fee = rate.MulInt64(lots)
	case CostPerNotional:
		fee = price.MulInt64(lots).MulInt64(contractMultiplier).Mul(rate)
	default:
		return fixed.Zero
	}
	return fee.Mul(multiplier)
}

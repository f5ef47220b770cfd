package barfile

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
)

// Cache layers packed-bar files over a slower market.Store. Daily-bar
// lookups hit the file first and fall through for instruments without one.
// All other queries delegate.
type Cache struct {
	market.Store
	dir     string
	readers map[string]*Reader
}

func NewCache(store market.Store, dir string) *Cache {
	return &Cache{
		Store:   store,
		dir:     dir,
		readers: make(map[string]*Reader),
	}
}

func (c *Cache) Close() {
	for _, r := range c.readers {
		r.Close()
	}
}

func (c *Cache) DailyBar(instrument string, date time.Time) (common.Bar, error) {
	r, ok := c.readers[instrument]
	if !ok {
		path := filepath.Join(c.dir, instrument+".bar")
		if _, err := os.Stat(path); err != nil {
			// negative entry, never stat this instrument again
			c.readers[instrument] = nil
			return c.Store.DailyBar(instrument, date)
		}
		r = NewReader(path)
		if err := r.Open(); err != nil {
			c.readers[instrument] = nil
			return c.Store.DailyBar(instrument, date)
		}
		c.readers[instrument] = r
	}
	if r == nil {
		return c.Store.DailyBar(instrument, date)
	}

	rec, err := r.Find(date)
	if err != nil {
		if errors.Is(err, market.ErrNoBar) {
			return common.Bar{}, market.ErrNoBar
		}
		return c.Store.DailyBar(instrument, date)
	}
	var bar common.Bar
	rec.ToBar(instrument, &bar)
	return bar, nil
}

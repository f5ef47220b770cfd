// Package barfile reads packed daily-bar files through a memory map. One
// file holds the full history of one instrument as fixed-size records
// sorted by date, which keeps repeated settlement lookups off the database.
package barfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/exp/mmap"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

var ErrEof = errors.New("EOF")

// BinaryBar is the on-disk record. T must not be padded.
type BinaryBar struct {
	DateKey    int64 // yyyymmdd
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Settlement float64
	PreClose   float64
	LimitUp    float64
	LimitDown  float64
	Volume     int64
}

func (b BinaryBar) ToBar(instrument string, bar *common.Bar) {
	bar.Instrument = instrument
	bar.Open = fixed.FromFloat64(b.Open)
	bar.High = fixed.FromFloat64(b.High)
	bar.Low = fixed.FromFloat64(b.Low)
	bar.Close = fixed.FromFloat64(b.Close)
	bar.Settlement = fixed.FromFloat64(b.Settlement)
	bar.PreClose = fixed.FromFloat64(b.PreClose)
	bar.LimitUp = fixed.FromFloat64(b.LimitUp)
	bar.LimitDown = fixed.FromFloat64(b.LimitDown)
	bar.Volume = b.Volume
	bar.TradeDate = time.Date(int(b.DateKey/10000), time.Month(b.DateKey/100%100),
		int(b.DateKey%100), 0, 0, 0, 0, time.UTC)
}

type Reader struct {
	dataSourceName string
	reader         *mmap.ReaderAt
	bufferPool     *sync.Pool
}

func NewReader(dataSourceName string) *Reader {
	return &Reader{
		dataSourceName: dataSourceName,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buffer := make([]byte, int(unsafe.Sizeof(BinaryBar{})))
				return &buffer
			},
		},
	}
}

func (r *Reader) Open() error {
	var err error
	r.reader, err = mmap.Open(r.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", r.dataSourceName, err)
	}
	return nil
}

func (r *Reader) Close() {
	_ = r.reader.Close()
}

func (r *Reader) Read(index int64, data *BinaryBar) error {
	buffer := r.bufferPool.Get().(*[]byte)
	defer r.bufferPool.Put(buffer)

	offset := index * int64(len(*buffer))

	n, err := r.reader.ReadAt(*buffer, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read: %w", err)
	}
	if n < len(*buffer) {
		return ErrEof
	}

	*data = *(*BinaryBar)(unsafe.Pointer(&(*buffer)[0]))
	return nil
}

func (r *Reader) EntryCount() (int64, error) {
	entrySize := int64(unsafe.Sizeof(BinaryBar{}))

	fileInfo, err := os.Stat(r.dataSourceName)
	if err != nil {
		return 0, fmt.Errorf("unable to get data source %q stats: %w", r.dataSourceName, err)
	}

	totalSize := fileInfo.Size()
	if totalSize%entrySize != 0 {
		return 0, fmt.Errorf("file size is not a multiple of entry size")
	}

	return totalSize / entrySize, nil
}

// Find binary-searches the mapped records for the given date.
func (r *Reader) Find(date time.Time) (BinaryBar, error) {
	count, err := r.EntryCount()
	if err != nil {
		return BinaryBar{}, err
	}

	key := int64(date.Year()*10000 + int(date.Month())*100 + date.Day())
	lo, hi := int64(0), count
	for lo < hi {
		mid := (lo + hi) / 2
		var rec BinaryBar
		if err := r.Read(mid, &rec); err != nil {
			return BinaryBar{}, err
		}
		switch {
		case rec.DateKey == key:
			return rec, nil
		case rec.DateKey < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return BinaryBar{}, market.ErrNoBar
}

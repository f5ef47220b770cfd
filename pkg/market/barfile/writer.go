package barfile

import (
	"fmt"
	"os"
	"unsafe"
)

// Writer appends packed records. Records must arrive in date order for
// Find to work.
type Writer struct {
	f *os.File
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open bar file %q: %w", path, err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) Append(rec BinaryBar) error {
	size := int(unsafe.Sizeof(rec))
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&rec)), size)
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("append bar record: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.f.Close()
}

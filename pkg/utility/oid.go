package utility

import (
	"sync"

	"github.com/google/uuid"
)

type RunID = uuid.UUID

var (
	runID     RunID
	runIDOnce sync.Once
	runIDMu   sync.RWMutex
)

// GetRunID identifies one simulation run. Result records are keyed by it.
func GetRunID() RunID {
	runIDOnce.Do(func() {
		runID = uuid.Must(uuid.NewV7())
	})

	runIDMu.RLock()
	defer runIDMu.RUnlock()
	return runID
}

func ResetRunID() RunID {
	runIDMu.Lock()
	defer runIDMu.Unlock()

	runID = uuid.Must(uuid.NewV7())
	return runID
}

// NewOrderID returns a unique order identifier. UUIDv7 carries a millisecond
// timestamp prefix, so ids generated within one run sort in creation order.
func NewOrderID() string {
	return uuid.Must(uuid.NewV7()).String()
}

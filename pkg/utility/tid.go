package utility

import (
	"github.com/google/uuid"
)

// NewTradeID returns a unique trade identifier.
func NewTradeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

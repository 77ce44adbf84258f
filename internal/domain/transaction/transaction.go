// Package transaction defines the immutable transaction record evaluated by
// the risk engine. An Event is created once per inbound request and never
// mutated afterwards.
package transaction

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/domain/values"
)

// Event is a single inbound transaction to be scored.
// Optional metadata fields may be empty; detectors that need them degrade
// gracefully instead of failing.
type Event struct {
	ID        uuid.UUID    `json:"id"`
	EntityID  string       `json:"entity_id"`
	Amount    values.Money `json:"amount"`
	Timestamp time.Time    `json:"timestamp"`

	// Optional metadata
	MerchantCategory string `json:"merchant_category,omitempty"`
	Location         string `json:"location,omitempty"`
	CustomerName     string `json:"customer_name,omitempty"`
	MerchantName     string `json:"merchant_name,omitempty"`
}

// NewEvent creates a validated transaction event. The timestamp defaults to
// now when zero so that replay and live traffic share one constructor.
func NewEvent(entityID string, amount values.Money, timestamp time.Time) (*Event, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, errors.ErrMissingEntityID
	}
	if amount.IsNegative() {
		return nil, errors.ErrNegativeAmount
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return &Event{
		ID:        uuid.New(),
		EntityID:  entityID,
		Amount:    amount,
		Timestamp: timestamp,
	}, nil
}

// WithMetadata returns a copy of the event with optional fields populated.
func (e *Event) WithMetadata(merchantCategory, location, customerName, merchantName string) *Event {
	clone := *e
	clone.MerchantCategory = merchantCategory
	clone.Location = location
	clone.CustomerName = customerName
	clone.MerchantName = merchantName
	return &clone
}

// Hour returns the local hour of day for timing-based pattern checks.
func (e *Event) Hour() int {
	return e.Timestamp.Hour()
}

package amqp

import (
	"encoding/json"
	"time"
)

// Actions carried by ledger events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// LedgerEvent is the compact message published after a ledger mutation
// commits. It carries only identifiers; consumers fetch the current state
// from the database, so a stale or replayed event is harmless.
type LedgerEvent struct {
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	Action        string    `json:"action"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewLedgerEvent builds an event stamped with the current time.
func NewLedgerEvent(transactionID, userID int64, action string) *LedgerEvent {
	return &LedgerEvent{
		TransactionID: transactionID,
		UserID:        userID,
		Action:        action,
		OccurredAt:    time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON parses an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

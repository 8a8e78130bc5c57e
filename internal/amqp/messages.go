package amqp

import (
	"encoding/json"
	"time"

	"voiceledger/internal/core"
)

// TransactionEvent notifies downstream consumers of a completed ledger
// mutation. It carries a denormalized copy of the entry so consumers need
// no access to the local store.
type TransactionEvent struct {
	Action      string    `json:"action"` // created | deleted
	ID          int64     `json:"id"`
	Item        string    `json:"item"`
	AmountCents int64     `json:"amount_cents"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

func NewTransactionEvent(action string, tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Action:      action,
		ID:          tx.ID,
		Item:        tx.Item,
		AmountCents: tx.Amount.Cents,
		Type:        string(tx.Type),
		Timestamp:   tx.Timestamp,
		PublishedAt: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON creates an event from JSON bytes
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Package ledger owns the ordered transaction sequence and its persisted
// mirror. Balance and daily summaries are always derived from the sequence
// itself; there are no separate running counters to drift.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voiceledger/internal/core"
	"voiceledger/internal/state"
)

// EventPublisher receives a notification after a completed mutation.
// Publishing is best-effort; failures never fail the mutation.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, action string, tx core.Transaction) error
}

// Store holds the in-memory newest-first sequence plus its persisted
// mirror. Every mutation re-persists the full sequence; the last completed
// mutation wins.
type Store struct {
	mu     sync.Mutex
	txs    []core.Transaction
	states state.Store
	events EventPublisher
	now    func() time.Time
}

// New builds a store over the given state backend. events may be nil.
// The now function is injectable for tests; nil means time.Now.
func New(states state.Store, events EventPublisher, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{states: states, events: events, now: now}
}

// Load reads the persisted sequence. An absent key yields an empty ledger.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.states.Get(ctx, state.KeyTransactions)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	if !ok {
		return nil
	}

	var txs []core.Transaction
	if err := json.Unmarshal([]byte(raw), &txs); err != nil {
		return fmt.Errorf("decode transactions: %w", err)
	}

	s.mu.Lock()
	s.txs = txs
	s.mu.Unlock()

	slog.InfoContext(ctx, "Ledger loaded", "count", len(txs))
	return nil
}

// Append assigns ID and timestamp to the candidate, prepends it and
// persists the full sequence. On persistence failure the in-memory
// sequence is rolled back: zero or one complete mutation, never partial.
func (s *Store) Append(ctx context.Context, c core.Candidate) (core.Transaction, error) {
	if err := c.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate candidate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := now.UnixMilli()
	// Unix-milli collisions cannot happen under the single-writer
	// assumption, but a coarse clock could repeat; bump past the head.
	if len(s.txs) > 0 && id <= s.txs[0].ID {
		id = s.txs[0].ID + 1
	}

	tx := core.Transaction{
		ID:        id,
		Item:      c.Item,
		Amount:    c.Amount,
		Type:      c.Type,
		Timestamp: now,
	}

	s.txs = append([]core.Transaction{tx}, s.txs...)
	if err := s.persist(ctx); err != nil {
		s.txs = s.txs[1:]
		return core.Transaction{}, fmt.Errorf("persist append: %w", err)
	}

	slog.InfoContext(ctx, "Transaction appended",
		"id", tx.ID,
		"item", tx.Item,
		"amount_cents", tx.Amount.Cents,
		"type", tx.Type)

	s.publish(ctx, "created", tx)
	return tx, nil
}

// Delete removes the entry with the matching id and persists the result.
// An absent id is an idempotent no-op and does not re-persist.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.txs {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	removed := s.txs[idx]
	next := make([]core.Transaction, 0, len(s.txs)-1)
	next = append(next, s.txs[:idx]...)
	next = append(next, s.txs[idx+1:]...)

	prev := s.txs
	s.txs = next
	if err := s.persist(ctx); err != nil {
		s.txs = prev
		return fmt.Errorf("persist delete: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	s.publish(ctx, "deleted", removed)
	return nil
}

// Reset drops the whole sequence and removes its persisted mirror. On
// backend failure the in-memory sequence is restored.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.txs
	s.txs = nil
	if err := s.states.Delete(ctx, state.KeyTransactions); err != nil {
		s.txs = prev
		return fmt.Errorf("reset ledger: %w", err)
	}

	slog.InfoContext(ctx, "Ledger reset", "dropped", len(prev))
	return nil
}

// Transactions returns a copy of the full sequence, newest first.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

// Day returns the entries on date's local calendar day, newest first.
func (s *Store) Day(date time.Time) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.FilterDay(s.txs, date)
}

// DailySummary recomputes the per-type totals for date on every call.
func (s *Store) DailySummary(date time.Time) core.DaySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.SummarizeDay(s.txs, date)
}

// LifetimeBalance recomputes the signed total over the whole sequence.
func (s *Store) LifetimeBalance() core.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.LifetimeBalance(s.txs)
}

// persist writes the whole sequence under the transactions key.
// Callers hold the mutex; the write is the last step of every mutation.
func (s *Store) persist(ctx context.Context) error {
	raw, err := json.Marshal(s.txs)
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	return s.states.Set(ctx, state.KeyTransactions, string(raw))
}

func (s *Store) publish(ctx context.Context, action string, tx core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionEvent(ctx, action, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"action", action, "id", tx.ID, "error", err)
		// Don't fail the mutation - the ledger is already persisted locally
	}
}

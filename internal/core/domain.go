package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Sale TxType = "sale"
	Debt TxType = "debt"
)

// DefaultItem is used when the extraction omits the item label.
const DefaultItem = "Transaction"

type (
	// TxType carries the sign of a transaction: a sale increases the
	// balance, a debt decreases it. Amounts themselves are always positive.
	TxType string

	Money struct {
		Cents int64 `json:"cents"`
	}

	// Transaction is immutable once created. ID doubles as the creation
	// instant in unix milliseconds and is unique under the single-writer
	// assumption.
	Transaction struct {
		ID        int64     `json:"id"`
		Item      string    `json:"item"`
		Amount    Money     `json:"amount"`
		Type      TxType    `json:"type"`
		Timestamp time.Time `json:"timestamp"`
	}

	// Candidate is a tentative transaction produced by extraction,
	// lacking ID and Timestamp until the ledger assigns them.
	Candidate struct {
		Item   string
		Amount Money
		Type   TxType
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrEmptyItem     = errors.New("empty item label")
)

func (t TxType) Valid() bool {
	return t == Sale || t == Debt
}

// Coerce maps any value other than the literal "debt" to Sale. Extraction
// output fails open toward the more common case.
func (t TxType) Coerce() TxType {
	if t == Debt {
		return Debt
	}
	return Sale
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Candidate) Validate() error {
	if len(strings.TrimSpace(c.Item)) == 0 {
		return ErrEmptyItem
	}
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.ID <= 0 {
		return errors.New("missing transaction id")
	}
	if t.Timestamp.IsZero() {
		return errors.New("missing transaction timestamp")
	}
	return Candidate{Item: t.Item, Amount: t.Amount, Type: t.Type}.Validate()
}

// SameDay reports whether two instants fall on the same local calendar
// date. Day equality, not a 24h window.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Midnight normalizes an instant to 00:00:00 local time on its date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

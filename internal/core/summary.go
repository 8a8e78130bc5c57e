package core

import "time"

// DaySummary holds the unsigned per-type totals for one calendar day.
type DaySummary struct {
	Sales Money `json:"sales"`
	Debt  Money `json:"debt"`
}

// SummarizeDay partitions the transactions falling on date's local calendar
// day by type and sums each partition. Pure function of (txs, date);
// recomputed on every read rather than incrementally maintained.
func SummarizeDay(txs []Transaction, date time.Time) DaySummary {
	var s DaySummary
	for _, t := range txs {
		if !SameDay(t.Timestamp, date) {
			continue
		}
		if t.Type == Debt {
			s.Debt.Cents += t.Amount.Cents
		} else {
			s.Sales.Cents += t.Amount.Cents
		}
	}
	return s
}

// LifetimeBalance returns the signed running total over the whole sequence,
// regardless of any viewed date: sales add, debts subtract.
func LifetimeBalance(txs []Transaction) Money {
	var total int64
	for _, t := range txs {
		if t.Type == Debt {
			total -= t.Amount.Cents
		} else {
			total += t.Amount.Cents
		}
	}
	return Money{Cents: total}
}

// FilterDay returns the transactions whose timestamp falls on date's local
// calendar day, preserving sequence order.
func FilterDay(txs []Transaction, date time.Time) []Transaction {
	var out []Transaction
	for _, t := range txs {
		if SameDay(t.Timestamp, date) {
			out = append(out, t)
		}
	}
	return out
}

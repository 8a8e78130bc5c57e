package core

import (
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -100}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestTxTypeCoerce(t *testing.T) {
	cases := []struct {
		in  TxType
		out TxType
	}{
		{Debt, Debt},
		{Sale, Sale},
		{"", Sale},
		{"DEBT", Sale}, // only the literal lowercase "debt" counts
		{"expense", Sale},
	}
	for i, tc := range cases {
		if got := tc.in.Coerce(); got != tc.out {
			t.Fatalf("case %d: %q coerced to %q, want %q", i, tc.in, got, tc.out)
		}
	}
}

func TestCandidateValidate(t *testing.T) {
	good := Candidate{Item: "tea", Amount: Money{Cents: 100}, Type: Sale}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Candidate{
		{Item: "", Amount: Money{Cents: 100}, Type: Sale},
		{Item: "  ", Amount: Money{Cents: 100}, Type: Sale},
		{Item: "tea", Amount: Money{Cents: 0}, Type: Sale},
		{Item: "tea", Amount: Money{Cents: -1}, Type: Debt},
		{Item: "tea", Amount: Money{Cents: 100}, Type: "loan"},
	}
	for i, c := range bads {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestSameDay(t *testing.T) {
	base := time.Date(2025, 3, 10, 23, 59, 0, 0, time.Local)
	cases := []struct {
		a, b time.Time
		want bool
	}{
		{base, base.Add(-23 * time.Hour), true},             // same date, hours apart
		{base, base.Add(2 * time.Minute), false},            // crosses midnight
		{base, base.AddDate(0, 0, -1), false},               // adjacent day, within 24h
		{base, time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local), true},
	}
	for i, tc := range cases {
		if got := SameDay(tc.a, tc.b); got != tc.want {
			t.Fatalf("case %d: SameDay(%v, %v) = %v, want %v", i, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestRegionByID(t *testing.T) {
	r, err := RegionByID("PK")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if r.Currency != "PKR" || r.Symbol != "Rs." {
		t.Fatalf("unexpected profile: %+v", r)
	}
	if _, err := RegionByID("ZZ"); err == nil {
		t.Fatalf("expected error for unknown region")
	}
}

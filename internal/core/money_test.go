package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestCentsFromNumber(t *testing.T) {
	cases := []struct {
		in  float64
		out int64
		ok  bool
	}{
		{100, 10000, true},
		{12.34, 1234, true},
		{12.345, 1235, true}, // half-up
		{0.004, 0, false},    // rounds to zero
		{0, 0, false},
		{-5, 0, false},
	}
	for _, tc := range cases {
		got, err := CentsFromNumber(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%v expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%v expected error", tc.in)
		}
	}
}

func TestMoneyFormat(t *testing.T) {
	if got := (Money{Cents: 1250}).Format("Rs."); got != "Rs.12.50" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Cents: -501}).Format("$"); got != "-$5.01" {
		t.Fatalf("got %q", got)
	}
}

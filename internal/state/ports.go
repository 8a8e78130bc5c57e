// Package state defines the opaque key/value persistence boundary.
// The ledger, region profile and inception date are stored as serialized
// values under well-known keys; backends are interchangeable.
package state

import "context"

// Well-known keys.
const (
	KeyUserCountry  = "userCountry"
	KeyStartDate    = "startDate"
	KeyTransactions = "transactions"
)

// Store is the port for outbound persistence adapters.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key; absent keys are a no-op.
	Delete(ctx context.Context, key string) error
}

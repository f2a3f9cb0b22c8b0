// Package credstore persists the client's credential record: the current
// token plus the provider refresh credential, as one unit. The primary medium
// is the OS-native secret store; a permission-restricted local file serves as
// fallback so a successful refresh is never silently dropped.
package credstore

import "context"

// Medium is one durable storage backend for the serialized record.
type Medium interface {
	// Read returns the stored payload. Returns an error if the payload is
	// missing or unreadable; callers decide whether that is fatal.
	Read(ctx context.Context) (string, error)

	// Write persists the payload, overwriting any existing value.
	Write(ctx context.Context, payload string) error

	// Delete removes the payload. Deleting an absent payload is not an error.
	Delete(ctx context.Context) error
}

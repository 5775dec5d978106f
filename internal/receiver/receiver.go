package receiver

import (
	"context"
	"time"
)

// Email is one fetched message, ready to be handed to delivery.
type Email struct {
	ID      string    // Message-ID, or a synthesized stable identifier
	Date    time.Time // Date header, zero when absent or unparsable
	Content []byte    // raw RFC 5322 message bytes
}

// Receiver fetches new mail from one remote account.
type Receiver interface {
	// Fetch returns messages dated on or after since whose IDs are not in
	// seen. Messages without a parsable date are included.
	Fetch(ctx context.Context, seen map[string]struct{}, since time.Time) ([]Email, error)

	// Close releases any resources held across Fetch calls.
	Close() error
}

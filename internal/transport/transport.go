// Package transport is the messaging layer a replica talks through: direct,
// addressed messages and subscribed broadcast logs.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/messages"
)

var ErrMalformedAddress = errors.New("malformed replica address")

// Transport carries a replica's outbound effects. Implementations must keep
// per-sender order and may deliver more than once.
type Transport interface {
	Send(ctx context.Context, to string, m messages.Message) error
	Emit(ctx context.Context, stream string, env events.Envelope) error
	Subscribe(ctx context.Context, publisher, stream string, from uint64) error
	Unsubscribe(ctx context.Context, publisher, stream string) error
}

// Inbound is what a transport hands received traffic to.
type Inbound interface {
	HandleMessage(ctx context.Context, from string, m messages.Message) error
	HandleStreamUpdate(ctx context.Context, u broadcast.Update) error
}

// ParseAddress validates a replica address and returns its canonical form.
func ParseAddress(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	return id.String(), nil
}

// NewAddress generates a fresh replica address.
func NewAddress() string {
	return uuid.NewString()
}

package push

import (
	"context"
)

// Message is a single push addressed to one device token. Data values are
// strings because the transport rejects any other type.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Messenger delivers push messages and returns the transport's message id.
type Messenger interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// DeliveryGuard records which notifications already produced a push so that
// a redelivered creation event does not reach the user twice.
type DeliveryGuard interface {
	// Acquire returns false when key was already acquired.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Package notify delivers one-time codes to users.
//
// A Sender hands a rendered Message to some transport. Senders that can
// check their transport before a code is generated also implement Pinger.
package notify

import (
	"context"
	"errors"
)

// ErrSendFailed is returned when a message could not be handed to the transport.
var ErrSendFailed = errors.New("notify: send failed")

// Message is a rendered notification addressed to a single recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Pinger is implemented by senders that can verify their transport without
// sending anything.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it implements Pinger and returns nil otherwise.
func Ping(ctx context.Context, s Sender) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder keeps sent messages in memory. It backs tests and the "log"
// transport in local development.
type Recorder struct {
	mu      sync.Mutex
	sent    []Message
	logger  *slog.Logger
	sendErr error
	pingErr error
}

var (
	_ Sender = (*Recorder)(nil)
	_ Pinger = (*Recorder)(nil)
)

// NewRecorder returns an empty Recorder. logger may be nil.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// FailSends makes subsequent sends return err. A nil err clears it.
func (r *Recorder) FailSends(err error) {
	r.mu.Lock()
	r.sendErr = err
	r.mu.Unlock()
}

// FailPings makes subsequent pings return err. A nil err clears it.
func (r *Recorder) FailPings(err error) {
	r.mu.Lock()
	r.pingErr = err
	r.mu.Unlock()
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, msg)
	if r.logger != nil {
		r.logger.InfoContext(ctx, "notification recorded",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
	}
	return nil
}

func (r *Recorder) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

// Last returns the most recent message sent to addr.
func (r *Recorder) Last(addr string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].To == addr {
			return r.sent[i], true
		}
	}
	return Message{}, false
}

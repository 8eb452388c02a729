package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPEmail_Render(t *testing.T) {
	msg, err := OTPEmail{
		To:       "a@x.com",
		Username: "<alice>",
		Code:     "123456",
		TTL:      10 * time.Minute,
	}.Render()
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, OTPSubject, msg.Subject)
	assert.Contains(t, msg.HTML, `<p class="otp-code">123456</p>`)
	assert.Contains(t, msg.HTML, "&lt;alice&gt;")
	assert.Contains(t, msg.HTML, "<strong>10 minutes</strong>")
}

func TestOTPEmail_RenderCustomTTL(t *testing.T) {
	msg, err := OTPEmail{To: "a@x.com", Code: "000001", TTL: 5 * time.Minute}.Render()
	require.NoError(t, err)
	assert.Equal(t, "Your OTP (Valid for 5 Minutes)", msg.Subject)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(nil)
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, Message{To: "a@x.com", Subject: "one"}))
	require.NoError(t, r.Send(ctx, Message{To: "b@x.com", Subject: "two"}))
	require.NoError(t, r.Send(ctx, Message{To: "a@x.com", Subject: "three"}))

	last, ok := r.Last("a@x.com")
	require.True(t, ok)
	assert.Equal(t, "three", last.Subject)
	assert.Len(t, r.Sent(), 3)

	boom := errors.New("boom")
	r.FailSends(boom)
	assert.ErrorIs(t, r.Send(ctx, Message{To: "c@x.com"}), boom)
	_, ok = r.Last("c@x.com")
	assert.False(t, ok)

	r.FailPings(boom)
	assert.ErrorIs(t, Ping(ctx, r), boom)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafka_Send(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWithWriter(w, "auth.email.requested", nil, nil)

	require.NoError(t, k.Send(context.Background(), Message{To: "a@x.com", Subject: "s", HTML: "<p>x</p>"}))
	require.Len(t, w.msgs, 1)

	got := w.msgs[0]
	assert.Equal(t, "a@x.com", string(got.Key))
	assert.Equal(t, "auth.email.requested", got.Topic)

	var ev EmailRequestedEvent
	require.NoError(t, json.Unmarshal(got.Value, &ev))
	assert.Equal(t, emailRequestedType, ev.EventType)
	assert.Equal(t, "<p>x</p>", ev.HTML)
	assert.NotEmpty(t, ev.EventID)

	w.err = errors.New("leader not available")
	assert.ErrorIs(t, k.Send(context.Background(), Message{To: "a@x.com"}), ErrSendFailed)
}

func TestKafka_EmptyTopicLeavesRoutingToWriter(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWithWriter(w, "", nil, nil)

	require.NoError(t, k.Send(context.Background(), Message{To: "b@x.com"}))
	require.Len(t, w.msgs, 1)
	assert.Empty(t, w.msgs[0].Topic)
	require.NoError(t, k.Ping(context.Background()))
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	r := NewRecorder(nil)
	r.FailSends(errors.New("relay down"))

	cfg := DefaultBreakerConfig("test-open")
	cfg.MinRequests = 3
	b := NewBreaker(r, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Send(ctx, Message{To: "a@x.com"}))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	r.FailSends(nil)
	err := b.Send(ctx, Message{To: "a@x.com"})
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Empty(t, r.Sent())
	assert.ErrorIs(t, b.Ping(ctx), ErrSendFailed)
}

func TestBreaker_PassesThrough(t *testing.T) {
	r := NewRecorder(nil)
	b := NewBreaker(r, DefaultBreakerConfig("test-pass"), nil)

	require.NoError(t, b.Send(context.Background(), Message{To: "a@x.com"}))
	require.NoError(t, b.Ping(context.Background()))
	assert.Len(t, r.Sent(), 1)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

// fakeSMTPServer accepts one session without TLS or auth and returns the DATA payload.
func fakeSMTPServer(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
		reply := func(s string) {
			_, _ = rw.WriteString(s + "\r\n")
			_ = rw.Flush()
		}
		reply("220 localhost ESMTP")
		for {
			line, err := rw.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 localhost")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 OK")
			case cmd == "DATA":
				reply("354 go ahead")
				var body strings.Builder
				for {
					l, err := rw.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				data <- body.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 OK")
			}
		}
	}()
	return ln.Addr().String(), data
}

func TestSMTP_Send(t *testing.T) {
	addr, data := fakeSMTPServer(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	s, err := NewSMTP(SMTPConfig{Host: host, Port: mustAtoi(t, port), From: "noreply@x.com", FromName: "Auth"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, Message{To: "a@x.com", Subject: "Hi", HTML: "<p>123456</p>"}))

	select {
	case body := <-data:
		assert.Contains(t, body, "To: <a@x.com>")
		assert.Contains(t, body, `From: "Auth" <noreply@x.com>`)
		assert.Contains(t, body, "Content-Type: text/html")
		assert.Contains(t, body, "<p>123456</p>")
	case <-ctx.Done():
		t.Fatal("no DATA received")
	}
}

func TestSMTP_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()

	host, port, _ := net.SplitHostPort(addr)
	s, err := NewSMTP(SMTPConfig{Host: host, Port: mustAtoi(t, port), From: "noreply@x.com", DialTimeout: time.Second})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Ping(context.Background()), ErrSendFailed)
}

func TestNewSMTP_Validation(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{From: "noreply@x.com"})
	assert.Error(t, err)
	_, err = NewSMTP(SMTPConfig{Host: "smtp.x.com", From: "not an address"})
	assert.Error(t, err)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

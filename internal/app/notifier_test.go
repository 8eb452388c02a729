package app

import (
	"context"
	"testing"

	"github.com/MrEthical07/authsvc/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotifierLogKind(t *testing.T) {
	sender, closer, err := NewNotifier(Config{Notifier: "log"}, nil)
	require.NoError(t, err)
	defer closer.Close()

	_, ok := sender.(*notify.Recorder)
	assert.True(t, ok)
	assert.NoError(t, sender.Send(context.Background(), notify.Message{To: "a@x.com"}))
}

func TestNewNotifierWrapsBreaker(t *testing.T) {
	sender, closer, err := NewNotifier(Config{Notifier: "log", NotifyBreaker: true}, nil)
	require.NoError(t, err)
	defer closer.Close()

	_, ok := sender.(*notify.Breaker)
	assert.True(t, ok)
}

func TestNewNotifierKafkaOwnsWriter(t *testing.T) {
	sender, closer, err := NewNotifier(Config{Notifier: "kafka", KafkaBrokers: []string{"127.0.0.1:1"}, KafkaTopic: "mail"}, nil)
	require.NoError(t, err)

	_, ok := sender.(*notify.Kafka)
	assert.True(t, ok)
	assert.Same(t, sender, closer)
	assert.NoError(t, closer.Close())
}

func TestNewNotifierSMTPRequiresFrom(t *testing.T) {
	_, _, err := NewNotifier(Config{Notifier: "smtp", SMTPHost: "smtp.example.test", SMTPFrom: "not an address"}, nil)
	assert.Error(t, err)
}

package app

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/authsvc/notify"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewNotifier builds the sender selected by cfg.Notifier, wrapped in a
// circuit breaker when enabled. The closer releases transport resources.
func NewNotifier(cfg Config, logger *slog.Logger) (notify.Sender, io.Closer, error) {
	var (
		sender notify.Sender
		closer io.Closer = nopCloser{}
	)

	switch cfg.Notifier {
	case "smtp":
		s, err := notify.NewSMTP(notify.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			FromName:    cfg.SMTPFromName,
			ImplicitTLS: cfg.SMTPImplicitTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		sender = s
	case "kafka":
		k := notify.NewKafka(notify.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchTimeout: cfg.KafkaBatch,
		}, logger)
		sender, closer = k, k
	default:
		// "log" keeps messages in memory and logs the recipient only.
		sender = notify.NewRecorder(logger)
	}

	if cfg.NotifyBreaker {
		sender = notify.NewBreaker(sender, notify.DefaultBreakerConfig(cfg.Notifier), logger)
	}
	return sender, closer, nil
}

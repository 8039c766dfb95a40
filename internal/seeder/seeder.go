package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/normalizer"
)

// Publisher sends one encoded record to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSPublisher publishes records on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server in cfg.
func NewNATSPublisher(cfg NATSConfig, logger *logging.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []nats.Option{
		nats.Name("reformat-seeder"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Seeder publishes generated records at a fixed pace.
type Seeder struct {
	gen       *Generator
	publisher Publisher
	subject   string
	logger    *logging.Logger
}

// New creates a seeder.
func New(gen *Generator, publisher Publisher, subject string, logger *logging.Logger) *Seeder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Seeder{gen: gen, publisher: publisher, subject: subject, logger: logger}
}

// Run publishes count records, one per interval. A zero count runs until ctx
// is cancelled; a zero interval publishes without pausing. It returns the
// number of records published.
func (s *Seeder) Run(ctx context.Context, count int, interval time.Duration) (int, error) {
	s.logger.Info("starting seeder", "subject", s.subject, "count", count, "interval", interval)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	sent := 0
	for count == 0 || sent < count {
		if sent > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		data, err := normalizer.Encode(s.gen.Record())
		if err != nil {
			return sent, fmt.Errorf("encode record: %w", err)
		}
		if err := s.publisher.Publish(ctx, s.subject, data); err != nil {
			return sent, fmt.Errorf("publish: %w", err)
		}
		sent++
	}

	s.logger.Info("seeding complete", "published", sent)
	return sent, nil
}

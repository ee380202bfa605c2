package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"compliance-lab/internal/config"
	"compliance-lab/pkg/logger"
)

// NATSPublisher publishes record events to NATS JetStream
type NATSPublisher struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
	logger        *logger.Logger

	mu        sync.RWMutex
	connected bool
}

// NewNATSPublisher connects to NATS and ensures the record stream exists
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	log = log.WithComponent("nats")

	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "compliance.records"
	}

	log.Info().Str("url", cfg.URL).Str("subjects", cfg.SubjectPrefix+".>").Msg("connecting to NATS")

	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        "COMPLIANCE_RECORDS",
		Description: "Compliance record change events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Discard:     jetstream.DiscardOld,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &NATSPublisher{
		conn:          conn,
		js:            js,
		subjectPrefix: cfg.SubjectPrefix,
		logger:        log,
		connected:     true,
	}, nil
}

// Close closes the NATS connection
func (p *NATSPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.connected = false
	}
}

// IsConnected returns whether NATS is connected
func (p *NATSPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.conn.IsConnected()
}

// Subject returns compliance.records.<collection>.<type>
func (p *NATSPublisher) Subject(event *RecordEvent) string {
	return fmt.Sprintf("%s.%s.%s", p.subjectPrefix, event.Collection, event.Type)
}

// Publish publishes a record event with JetStream acknowledgement
func (p *NATSPublisher) Publish(ctx context.Context, event *RecordEvent) error {
	if !p.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(event)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("subject", subject).
		Str("collection", event.Collection).
		Msg("published record event")
	return nil
}

// Subscribe delivers every record event seen on the stream subjects
// until ctx is cancelled.
func (p *NATSPublisher) Subscribe(ctx context.Context) (<-chan *RecordEvent, error) {
	if !p.IsConnected() {
		return nil, fmt.Errorf("NATS not connected")
	}

	out := make(chan *RecordEvent, 100)
	var (
		outMu  sync.Mutex
		closed bool
	)
	sub, err := p.conn.Subscribe(p.subjectPrefix+".>", func(msg *nats.Msg) {
		var event RecordEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to unmarshal event")
			return
		}

		// a callback may still be running after Unsubscribe
		outMu.Lock()
		defer outMu.Unlock()
		if closed {
			return
		}
		select {
		case out <- &event:
		default:
			p.logger.Debug().Str("subject", msg.Subject).Msg("event channel full, dropping event")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Debug().Err(err).Msg("unsubscribe failed")
		}
		outMu.Lock()
		closed = true
		close(out)
		outMu.Unlock()
	}()

	return out, nil
}

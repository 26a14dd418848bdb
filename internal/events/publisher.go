// Package events publishes pending-operation lifecycle events to NATS
// JetStream for external observability. Publishing is always best-effort;
// the retry pipeline never depends on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

const (
	// StreamName is the name of the outbox lifecycle stream.
	StreamName = "OUTBOX"

	// SubjectPrefix is the prefix for all outbox subjects.
	SubjectPrefix = "outbox"
)

// Lifecycle event kinds.
const (
	EventPickedUp      = "picked_up"
	EventCompleted     = "completed"
	EventAttemptFailed = "attempt_failed"
	EventExhausted     = "exhausted"
)

// OperationEvent is the wire form of one lifecycle transition.
type OperationEvent struct {
	OperationID   string              `json:"operation_id"`
	OperationType model.OperationType `json:"operation_type"`
	Event         string              `json:"event"`
	RetryCount    int                 `json:"retry_count"`
	Error         string              `json:"error,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// Publisher publishes operation lifecycle events. A nil Publisher is valid
// and drops everything, so callers never need to branch on configuration.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect establishes the NATS connection and ensures the outbox stream
// exists.
func Connect(ctx context.Context, url, token string, log *logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{conn: nc, js: js, logger: log}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Pending-operation lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish emits one lifecycle event. Failures are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, op *model.PendingOperation, event, errMsg string) {
	if p == nil {
		return
	}

	evt := OperationEvent{
		OperationID:   op.ID,
		OperationType: op.OperationType,
		Event:         event,
		RetryCount:    op.RetryCount,
		Error:         errMsg,
		Timestamp:     time.Now(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Warn("failed to marshal operation event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, op.OperationType, event)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.logger.Warn("failed to publish operation event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// IsConnected reports whether the NATS connection is up. A nil Publisher
// reports false.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

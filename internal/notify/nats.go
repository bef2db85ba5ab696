// Package notify publishes terminal-transition events to NATS subjects for
// any external system that wants to react to a message reaching SUCCESS or
// FAILED_MAX_RETRIES. It is additive: publish failures are logged and
// otherwise ignored, never surfaced to the scheduler core's own error
// handling, and a nil *Notifier disables fan-out entirely.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/scheduler"
)

const (
	subjectDelivered = "sms.delivered"
	subjectFailed    = "sms.failed"
)

// Notifier wraps a NATS connection. A nil *Notifier is valid: every method
// on it is a no-op, so callers never need to branch on whether NATS was
// configured.
type Notifier struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials url and returns a ready Notifier. Callers that don't
// configure a NATS URL should simply pass a nil *Notifier around instead
// of calling Connect.
func Connect(url string, logger *zap.Logger) (*Notifier, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{conn: conn, logger: logger}, nil
}

type terminalEvent struct {
	MessageID    string  `json:"message_id"`
	AttemptCount int     `json:"attempt_count"`
	Status       string  `json:"status"`
	UpdatedAt    float64 `json:"updated_at"`
	PublishedAt  int64   `json:"published_at"`
}

// Delivered publishes a SUCCESS transition. Safe to call on a nil Notifier.
func (n *Notifier) Delivered(state scheduler.MessageState) {
	n.publish(subjectDelivered, state)
}

// Failed publishes a FAILED_MAX_RETRIES transition. Safe to call on a nil Notifier.
func (n *Notifier) Failed(state scheduler.MessageState) {
	n.publish(subjectFailed, state)
}

func (n *Notifier) publish(subject string, state scheduler.MessageState) {
	if n == nil || n.conn == nil {
		return
	}

	event := terminalEvent{
		MessageID:    state.MessageID,
		AttemptCount: state.AttemptCount,
		Status:       string(state.Status),
		UpdatedAt:    state.UpdatedAt,
		PublishedAt:  time.Now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("failed to marshal terminal event", zap.String("message_id", state.MessageID), zap.Error(err))
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn("failed to publish terminal event",
			zap.String("subject", subject), zap.String("message_id", state.MessageID), zap.Error(err))
	}
}

// Close releases the underlying connection. Safe to call on a nil Notifier.
func (n *Notifier) Close() {
	if n != nil && n.conn != nil {
		n.conn.Close()
	}
}

// Package mock provides a deterministic-shape, randomized-outcome
// scheduler.SendPort for local development and tests -- no real carrier
// integration, matching the teacher's internal/providers/mock package.
package mock

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"sms-retry-scheduler/internal/scheduler"
)

// Provider is a scheduler.SendPort backed by a success-rate coin flip. The
// rate cmd/server uses (0.3) is deliberately low: across the full six-attempt
// retry schedule it yields roughly a 12% chance of exhausting retries,
// enough to exercise both terminal states in normal testing.
type Provider struct {
	successRate float64
	logger      *zap.Logger
}

func NewProvider(successRate float64, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{successRate: successRate, logger: logger}
}

// Send implements scheduler.SendPort.
func (p *Provider) Send(_ context.Context, msg scheduler.Message) (bool, error) {
	success := rand.Float64() < p.successRate
	if success {
		p.logger.Debug("mock provider sent message", zap.String("message_id", msg.MessageID))
	} else {
		p.logger.Debug("mock provider failed to send message", zap.String("message_id", msg.MessageID))
	}
	return success, nil
}

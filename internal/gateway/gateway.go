// internal/gateway/gateway.go
package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/unclebandit/courier-backend/internal/model"
)

// SendResult is the gateway's synchronous answer. Later states (delivered,
// read, failed) arrive asynchronously over the webhook.
type SendResult struct {
	ExternalID string
	Status     model.MessageStatus // sent or failed
}

// Sender is the outbound messaging gateway. The concrete transport behind it
// is not this service's concern.
type Sender interface {
	Send(ctx context.Context, recipient *model.Recipient, payload string) (*SendResult, error)
}

// MockSender simulates a gateway for local runs and tests. SuccessRate is
// the probability of a successful send, 1.0 when unset via NewMockSender.
type MockSender struct {
	SuccessRate float64

	// rng is shared by concurrent sends.
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockSender(successRate float64, seed int64) *MockSender {
	return &MockSender{
		SuccessRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (m *MockSender) Send(ctx context.Context, recipient *model.Recipient, payload string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.rng != nil {
		m.mu.Lock()
		roll := m.rng.Float64()
		m.mu.Unlock()
		if roll >= m.SuccessRate {
			return nil, fmt.Errorf("mock sending to %s failed", recipient.Phone)
		}
	}
	return &SendResult{
		ExternalID: "wamid." + uuid.NewString(),
		Status:     model.StatusSent,
	}, nil
}

package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher is the narrow capability handed to HTTP controllers: enqueue a
// job body on a topic. Backed by AMQP in production, by InMemoryQueue in
// single-process mode and tests.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// DispatchTopic carries campaign dispatch jobs.
const DispatchTopic = "campaign.dispatch"

// DispatchJob asks a worker to fan one campaign out to its recipients.
type DispatchJob struct {
	CampaignID   int   `json:"campaign_id"`
	RecipientIDs []int `json:"recipient_ids"`
}

// InMemoryQueue delivers published bodies to subscribed handlers on
// goroutines, retrying failed handlers with backoff.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
	log      zerolog.Logger
}

func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(body []byte) error),
		log:      log.With().Str("component", "queue").Logger(),
	}
}

const maxRetries = 3

func (q *InMemoryQueue) Publish(topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(topic, handler, body)
	}
	return nil
}

func (q *InMemoryQueue) processJob(topic string, handler func(body []byte) error, body []byte) {
	for attempt := 1; ; attempt++ {
		err := handler(body)
		if err == nil {
			return
		}
		if attempt > maxRetries {
			q.log.Error().Err(err).Str("topic", topic).Int("attempts", attempt).
				Msg("job permanently failed")
			return
		}
		q.log.Warn().Err(err).Str("topic", topic).Int("attempt", attempt).
			Msg("job failed, retrying")
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
}

var _ Publisher = (*InMemoryQueue)(nil)

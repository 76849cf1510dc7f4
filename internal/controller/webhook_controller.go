// internal/controller/webhook_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/courier-backend/internal/service"
)

// WebhookController receives the gateway's status callbacks.
type WebhookController struct {
	VerifyToken string
	Ingestor    *service.Ingestor
	Log         zerolog.Logger
}

// Verify answers the gateway's GET handshake: echo the challenge when the
// token matches, 403 otherwise.
func (c *WebhookController) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == c.VerifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

type webhookStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Errors    []struct {
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []webhookStatus `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles status-event delivery. The gateway treats processing as
// fire and forget, so the 200 goes out before the events are applied.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		c.Log.Warn().Err(err).Msg("undecodable webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	go c.process(payload)
}

func (c *WebhookController) process(payload webhookPayload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				ev := service.StatusEvent{
					ExternalID: st.ID,
					Status:     st.Status,
					ObservedAt: parseUnix(st.Timestamp),
				}
				if len(st.Errors) > 0 {
					ev.Error = st.Errors[0].Title
				}
				if err := c.Ingestor.Ingest(ev); err != nil {
					c.Log.Error().Err(err).Str("external_id", st.ID).Msg("failed to ingest status event")
				}
			}
		}
	}
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

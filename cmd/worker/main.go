// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/unclebandit/courier-backend/internal/config"
	"github.com/unclebandit/courier-backend/internal/db"
	"github.com/unclebandit/courier-backend/internal/gateway"
	"github.com/unclebandit/courier-backend/internal/queue"
	"github.com/unclebandit/courier-backend/internal/repository"
	"github.com/unclebandit/courier-backend/internal/service"
)

const maxRetries = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}

	// The worker has no connected clients; pushes are dropped. The server's
	// ingest/reaper paths cover live updates for webhook-driven changes.
	aggregator := &service.Aggregator{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		Notify:       service.NopNotifier{},
		Log:          logger,
	}

	orchestrator := &service.Orchestrator{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		MessageRepo:   messageRepo,
		Aggregator:    aggregator,
		Gateway:       gateway.NewMockSender(0.9, time.Now().UnixNano()),
		Notify:        service.NopNotifier{},
		Log:           logger,
		Limiter:       rate.NewLimiter(rate.Limit(cfg.GatewayRate), cfg.GatewayBurst),
		Concurrency:   cfg.SendConcurrency,
		SendTimeout:   cfg.SendTimeout,
	}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open a channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(queue.DispatchTopic, true, false, false, false, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to declare queue")
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register consumer")
	}

	logger.Info().Msg("worker running, waiting for dispatch jobs")

	for d := range deliveries {
		var job queue.DispatchJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			logger.Warn().Err(err).Msg("invalid job body")
			_ = d.Ack(false)
			continue
		}

		report, err := orchestrator.Dispatch(context.Background(), job.CampaignID, job.RecipientIDs)
		if err != nil {
			retries := retryCount(d.Headers)
			logger.Error().Err(err).Int("campaign_id", job.CampaignID).Int("retries", retries).
				Msg("dispatch failed")
			if retries < maxRetries {
				// Requeueing via Nack would never bump the counter, so the
				// job is republished with it incremented instead.
				_ = ch.Publish("", q.Name, false, false, amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					Headers:      amqp.Table{"x-retry-count": int32(retries + 1)},
					Body:         d.Body,
				})
			} else {
				logger.Error().Int("campaign_id", job.CampaignID).
					Msg("dropping dispatch job after max retries")
			}
			_ = d.Ack(false)
			continue
		}

		logger.Info().Int("campaign_id", report.CampaignID).Int("total", report.Total).
			Int("succeeded", report.Succeeded).Int("failed", report.Failed).
			Msg("campaign dispatched")
		_ = d.Ack(false)
	}
}

// retryCount reads the x-retry-count header; a missing or malformed header
// counts as zero.
func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch n := headers["x-retry-count"].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

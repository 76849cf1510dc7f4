// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/unclebandit/courier-backend/internal/config"
	"github.com/unclebandit/courier-backend/internal/controller"
	"github.com/unclebandit/courier-backend/internal/db"
	"github.com/unclebandit/courier-backend/internal/gateway"
	"github.com/unclebandit/courier-backend/internal/hub"
	"github.com/unclebandit/courier-backend/internal/queue"
	"github.com/unclebandit/courier-backend/internal/repository"
	"github.com/unclebandit/courier-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The hub is the only connection registry; it is built here and handed
	// to everything that pushes.
	notificationHub := hub.New(
		&hub.JWTVerifier{Secret: []byte(cfg.JWTSecret)},
		logger, cfg.HeartbeatInterval, cfg.SendBuffer,
	)
	go notificationHub.Run(ctx)

	aggregator := &service.Aggregator{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		Notify:       notificationHub,
		Log:          logger,
		Debounce:     200 * time.Millisecond,
	}

	orchestrator := &service.Orchestrator{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		MessageRepo:   messageRepo,
		Aggregator:    aggregator,
		Gateway:       gateway.NewMockSender(0.9, time.Now().UnixNano()),
		Notify:        notificationHub,
		Log:           logger,
		Limiter:       rate.NewLimiter(rate.Limit(cfg.GatewayRate), cfg.GatewayBurst),
		Concurrency:   cfg.SendConcurrency,
		SendTimeout:   cfg.SendTimeout,
	}

	ingestor := &service.Ingestor{
		MessageRepo: messageRepo,
		Aggregator:  aggregator,
		Notify:      notificationHub,
		Log:         logger,
	}

	reaper := &service.Reaper{
		MessageRepo: messageRepo,
		Aggregator:  aggregator,
		Notify:      notificationHub,
		Log:         logger,
		Timeout:     cfg.ReaperTimeout,
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc("@every "+cfg.ReaperInterval.String(), func() {
		if _, err := reaper.Sweep(); err != nil {
			logger.Error().Err(err).Msg("reaper sweep failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reaper")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// With an AMQP broker configured, dispatch jobs go to cmd/worker.
	// Without one, an in-process subscriber runs the same fan-out.
	var publisher queue.Publisher
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to AMQP")
		}
		defer amqpQueue.Close()
		publisher = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue(logger)
		memQueue.Subscribe(queue.DispatchTopic, func(body []byte) error {
			var job queue.DispatchJob
			if err := json.Unmarshal(body, &job); err != nil {
				logger.Warn().Err(err).Msg("invalid dispatch job")
				return nil
			}
			report, err := orchestrator.Dispatch(ctx, job.CampaignID, job.RecipientIDs)
			if err != nil {
				return err
			}
			logger.Info().Int("campaign_id", report.CampaignID).Int("total", report.Total).
				Int("succeeded", report.Succeeded).Int("failed", report.Failed).
				Msg("campaign dispatched")
			return nil
		})
		publisher = memQueue
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		Queue:        publisher,
	}

	campaignController := &controller.CampaignController{CampaignService: campaignService, Log: logger}
	webhookController := &controller.WebhookController{
		VerifyToken: cfg.WebhookVerifyToken,
		Ingestor:    ingestor,
		Log:         logger,
	}
	notificationController := &controller.NotificationController{Hub: notificationHub}

	r := chi.NewRouter()

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/send", campaignController.SendCampaign)
	r.Get("/messages/{id}/history", campaignController.GetMessageHistory)

	r.Get("/webhook", webhookController.Verify)
	r.Post("/webhook", webhookController.Receive)

	r.Get("/ws", notificationHub.ServeWS)
	r.Post("/notifications/test", notificationController.TestNotification)
	r.Get("/notifications/stats", notificationController.Stats)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	aggregator.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

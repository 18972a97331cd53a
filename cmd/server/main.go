// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/convoreach/convoreach-backend/internal/batcher"
	"github.com/convoreach/convoreach-backend/internal/config"
	"github.com/convoreach/convoreach-backend/internal/db"
	"github.com/convoreach/convoreach-backend/internal/handler"
	"github.com/convoreach/convoreach-backend/internal/ingest"
	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/orchestrator"
	"github.com/convoreach/convoreach-backend/internal/queue"
	"github.com/convoreach/convoreach-backend/internal/repository"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := config.Load()

	conn, err := db.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal(err)
	}

	messageRepo := &repository.MessageRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}
	outboundRepo := &repository.OutboundItemRepository{DB: conn}
	configRepo := &repository.AgentConfigRepository{DB: conn}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := queue.NewAMQPPublisher(cfg.AMQPURL, cfg.QueueName)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ:", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	} else {
		log.Println("⚠️ AMQP_URL not set, sender relies on periodic drain only")
	}

	outboundQueue := &queue.OutboundQueue{
		Items:       outboundRepo,
		Messages:    messageRepo,
		Publisher:   publisher,
		MaxAttempts: cfg.MaxAttempts,
	}

	var generator orchestrator.Generator
	if cfg.GenerationURL != "" {
		generator = orchestrator.NewHTTPGenerator(cfg.GenerationURL, cfg.GenerationTimeout)
	} else {
		log.Println("⚠️ GENERATION_URL not set, using stub generator")
		generator = orchestrator.StubGenerator{}
	}

	orch := &orchestrator.Orchestrator{
		Conversations:     conversationRepo,
		Messages:          messageRepo,
		Config:            configRepo,
		Queue:             outboundQueue,
		Generator:         generator,
		Detector:          orchestrator.KeywordDetector{},
		BusinessName:      cfg.BusinessName,
		GenerationTimeout: cfg.GenerationTimeout,
	}

	flush := func(conversationID string, batch []*model.Message) {
		if _, err := orch.ProcessBatch(context.Background(), conversationID, batch); err != nil {
			log.Printf("pipeline: batch for conversation %s failed: %v", conversationID, err)
		}
	}

	windows := batcher.New(cfg.CollectionWindow, flush)
	defer windows.Stop()

	sweeper := &batcher.Sweeper{
		Messages:    messageRepo,
		Outbound:    outboundRepo,
		Batcher:     windows,
		Flush:       flush,
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.SweepBatchSize,
		GracePeriod: cfg.CollectionWindow + cfg.CollectionWindow/2,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := sweeper.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("sweep: stopped: %v", err)
		}
	}()

	webhookHandler := &handler.WebhookHandler{Ingestor: &ingest.Ingestor{
		Messages:            messageRepo,
		Conversations:       conversationRepo,
		DuplicateTextWindow: cfg.DuplicateTextWindow,
	}, Batcher: windows}

	operatorHandler := &handler.OperatorHandler{
		Conversations: conversationRepo,
		Items:         outboundRepo,
	}

	r := chi.NewRouter()

	r.Post("/webhooks/instagram", webhookHandler.InstagramWebhook)
	r.Post("/webhooks/gmail", webhookHandler.GmailWebhook)
	r.Get("/conversations/{id}", operatorHandler.GetConversation)
	r.Get("/outbound/{id}", operatorHandler.GetOutboundItem)
	r.Post("/outbound/{id}/reset", operatorHandler.ResetOutboundItem)
	r.Get("/outbound-stats", operatorHandler.QueueStats)
	r.Get("/healthz", handler.Healthz)

	log.Printf("🚀 Server running on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

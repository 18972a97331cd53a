// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/convoreach/convoreach-backend/internal/channel"
	"github.com/convoreach/convoreach-backend/internal/config"
	"github.com/convoreach/convoreach-backend/internal/db"
	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/queue"
	"github.com/convoreach/convoreach-backend/internal/repository"
	"github.com/convoreach/convoreach-backend/internal/sender"
)

func main() {
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

	outboundQueue := &queue.OutboundQueue{
		Items:       outboundRepo,
		Messages:    messageRepo,
		MaxAttempts: cfg.MaxAttempts,
	}

	senders := map[model.Channel]channel.Sender{}
	if cfg.InstagramToken != "" {
		senders[model.ChannelInstagram] = channel.NewInstagramSender(cfg.InstagramToken)
	}
	if cfg.GmailToken != "" {
		senders[model.ChannelGmail] = channel.NewGmailSender(cfg.GmailToken, "")
	}
	if len(senders) == 0 {
		log.Println("⚠️ No channel credentials configured, all sends will fail permanently")
	}

	worker := &sender.Worker{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Items:         outboundRepo,
		Queue:         outboundQueue,
		Senders:       senders,
		Gate:          sender.NewRateGate(cfg.AccountPerSecond, cfg.ContactCooldown),
		Interval:      cfg.SenderInterval,
		BatchSize:     cfg.SenderBatchSize,
		SendTimeout:   cfg.SendTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(ctx)
	})

	if cfg.AMQPURL != "" {
		g.Go(func() error {
			return consumeNudges(ctx, cfg.AMQPURL, cfg.QueueName, worker)
		})
	}

	log.Println("Worker running, waiting for messages...")
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}

// consumeNudges delivers freshly queued items without waiting for the next
// periodic pass. A nudge is best-effort: on any failure the item is still
// covered by the drain, so messages are acked rather than requeued forever.
func consumeNudges(ctx context.Context, url, queueName string, worker *sender.Worker) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		queueName,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var nudge queue.Nudge
			if err := json.Unmarshal(d.Body, &nudge); err != nil {
				log.Println("Invalid nudge:", err)
				d.Ack(false)
				continue
			}
			if err := worker.ProcessByID(ctx, nudge.OutboundItemID); err != nil {
				log.Printf("nudge: item %s failed: %v", nudge.OutboundItemID, err)
			}
			d.Ack(false)
		}
	}
}

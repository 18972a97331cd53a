// cmd/seeder/main.go
package main

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/convoreach/convoreach-backend/internal/db"
	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	conn, err := db.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal(err)
	}

	configRepo := &repository.AgentConfigRepository{DB: conn}
	if err := configRepo.Save(model.DefaultAgentConfig()); err != nil {
		log.Fatalf("failed to seed agent config: %v", err)
	}
	fmt.Println("Seeded: agent config")

	conversationRepo := &repository.ConversationRepository{DB: conn}
	demo := &model.Conversation{
		ID:               uuid.New().String(),
		ContactID:        "demo-contact",
		ContactRef:       "demo-contact",
		ChannelAccountID: "demo-account",
		Channel:          model.ChannelInstagram,
		Status:           model.ConversationOpen,
		AIEnabled:        true,
		LeadScore:        model.LeadScore{Current: 1},
		Milestone: model.Milestone{
			Target:           model.MilestoneTargetMeeting,
			Status:           model.MilestonePending,
			AutoDisableAgent: true,
		},
	}
	if err := conversationRepo.Create(demo); err != nil {
		log.Fatalf("failed to seed conversation: %v", err)
	}
	fmt.Printf("Seeded: conversation %s\n", demo.ID)

	fmt.Println("Database seeding completed successfully!")
}

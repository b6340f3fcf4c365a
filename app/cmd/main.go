package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"sambot/app/agent"
	"sambot/app/server"
	"sambot/model"
	"sambot/store"
)

func main() {
	loadEnv()

	question := flag.String("q", "", "ask one question on the command line and exit")
	state := flag.String("state", "", "two-letter jurisdiction code (default $STATE)")
	flag.Parse()

	ctx := context.Background()

	storer, err := store.NewPostgresStore(ctx, store.DSNFromEnv())
	if err != nil {
		log.Fatal("error connecting to Postgres: ", err)
	}
	defer storer.Close()

	if err := storer.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
	}

	client := model.NewClient(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_KEY"))
	ag := agent.New(
		model.NewOpenAIChat(client, os.Getenv("OPENAI_CHAT_MODEL")),
		model.NewOpenAIEmbedder(client, os.Getenv("OPENAI_EMBED_MODEL")),
		storer,
	)

	defaultState := envOr("STATE", "CT")

	if *question != "" {
		st := *state
		if st == "" {
			st = defaultState
		}
		resp, err := ag.Answer(ctx, *question, st)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(resp.Answer)
		return
	}

	s := server.New(envOr("SERVER_ADDR", ":8080"), ag, defaultState)
	go func() {
		if err := s.Run(); err != nil {
			log.Fatal("error starting server: ", err)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	log.Println("Received shutdown signal, shutting down server...")
	if err := s.Stop(); err != nil {
		log.Printf("error stopping server: %v", err)
	}
}

func loadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on process environment")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

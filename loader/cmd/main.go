package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"sambot/chunker"
	"sambot/loader/crawl"
	"sambot/loader/service"
	"sambot/model"
	"sambot/store"
	"sambot/types"
)

const jobFile = "crawl_jobs.json"

// Binary assets would only bloat the chunk tables.
var excludeImagePaths = []string{`.*\.jpg$`, `.*\.png$`, `.*\.gif$`, `.*\.jpeg$`}

func main() {
	loadEnv()

	var (
		seed       = flag.String("seed", "", "start a crawl from this URL and save the job id")
		limit      = flag.Int("limit", 100, "crawl page limit")
		depth      = flag.Int("depth", 4, "crawl discovery depth")
		job        = flag.String("job", "", "fetch this crawl job's results and ingest them")
		pdfPath    = flag.String("pdf", "", "ingest a local PDF file")
		cropTop    = flag.Float64("crop-top", 0, "points to crop from the top of each PDF page")
		cropBottom = flag.Float64("crop-bottom", 0, "points to crop from the bottom of each PDF page")
	)
	flag.Parse()

	ctx := context.Background()
	state := envOr("STATE", "CT")
	crawlClient := crawl.NewClient(os.Getenv("FIRECRAWL_BASE_URL"), os.Getenv("FIRECRAWL_API_KEY"))

	switch {
	case *seed != "":
		startCrawl(ctx, crawlClient, *seed, *limit, *depth, state)
	case *job != "" || *pdfPath != "":
		svc, closeStore := buildService(ctx, crawlClient, state)
		defer closeStore()

		if *job != "" {
			if err := svc.IngestJob(ctx, *job); err != nil {
				log.Fatal(err)
			}
		}
		if *pdfPath != "" {
			if err := svc.IngestPDF(ctx, *pdfPath, *cropTop, *cropBottom); err != nil {
				log.Fatal(err)
			}
		}
		log.Println("Done.")
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func startCrawl(ctx context.Context, client *crawl.Client, seed string, limit, depth int, state string) {
	jobID, err := client.Start(ctx, seed, limit, depth, excludeImagePaths)
	if err != nil {
		log.Fatal("error starting crawl: ", err)
	}

	data, err := json.MarshalIndent(types.CrawlJob{
		State:   state,
		SeedURL: seed,
		JobID:   jobID,
		Limit:   limit,
	}, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(jobFile, data, 0644); err != nil {
		log.Fatal("error saving job info: ", err)
	}

	log.Printf("Started crawl. Job ID: %s (saved to %s)", jobID, jobFile)
}

func buildService(ctx context.Context, crawlClient *crawl.Client, state string) (*service.Service, func()) {
	storer, err := store.NewPostgresStore(ctx, store.DSNFromEnv())
	if err != nil {
		log.Fatal("error connecting to Postgres: ", err)
	}
	if err := storer.Init(ctx); err != nil {
		storer.Close()
		log.Fatal("error creating tables: ", err)
	}

	tok, err := chunker.NewTikToken()
	if err != nil {
		storer.Close()
		log.Fatal("error loading tokenizer: ", err)
	}
	ch := chunker.New(tok, envInt("CHUNK_TARGET", chunker.DefaultTarget), envInt("CHUNK_OVERLAP", chunker.DefaultOverlap))

	client := model.NewClient(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_KEY"))
	embedder := model.NewOpenAIEmbedder(client, os.Getenv("OPENAI_EMBED_MODEL"))

	svc := service.New(storer, crawlClient, embedder, ch, state)
	return svc, func() { _ = storer.Close() }
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

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

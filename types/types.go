package types

import (
	"time"

	"github.com/google/uuid"
)

type DocType string

const (
	DocTypePDF  DocType = "pdf"
	DocTypeHTML DocType = "html"
)

// Document is one crawled page. DocID is derived from the URL
// (uuid5 over the URL namespace) so a re-crawl updates the same row
// instead of creating a duplicate.
type Document struct {
	DocID   uuid.UUID
	URL     string
	Title   string
	State   string // jurisdiction code, e.g. "CT"
	DocType DocType
}

// Chunk is the unit of embedding and retrieval. ChunkID is the
// zero-padded sequence number, unique within the owning document.
type Chunk struct {
	DocID           uuid.UUID
	ChunkID         string
	Seq             int
	Text            string
	Heading         *string
	PageNum         *int
	Embedding       []float32
	EmbeddingFailed bool
}

// RetrievedRow is a query-time result row. Not persisted.
type RetrievedRow struct {
	URL     string
	Title   string
	Text    string
	PageNum *int
}

// NewDocID maps a URL to a stable document id.
func NewDocID(url string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url))
}

// CrawlJob is what the loader writes to crawl_jobs.json after starting a crawl.
type CrawlJob struct {
	State   string `json:"state"`
	SeedURL string `json:"seed_url"`
	JobID   string `json:"job_id"`
	Limit   int    `json:"limit"`
}

type SearchResponse struct {
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

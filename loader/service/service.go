package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sambot/chunker"
	"sambot/loader/crawl"
	"sambot/loader/internal"
	"sambot/model"
	"sambot/store"
	"sambot/types"
)

// embedBatchSize bounds how many chunk texts go into one embedding call.
const embedBatchSize = 16

// Crawler fetches the accumulated result feed of a crawl job.
type Crawler interface {
	FetchAll(ctx context.Context, jobID string) ([]crawl.Page, error)
}

// Service drives ingestion: crawl results in, documents and embedded
// chunks upserted into the store. Single-threaded; re-runs are idempotent
// because everything is keyed by doc_id / (doc_id, chunk_id).
type Service struct {
	logger   *slog.Logger
	store    store.DBStorer
	crawler  Crawler
	embedder model.Embedder
	chunker  *chunker.Chunker
	state    string
}

func New(storer store.DBStorer, crawler Crawler, embedder model.Embedder, ch *chunker.Chunker, state string) *Service {
	return &Service{
		logger:   slog.Default(),
		store:    storer,
		crawler:  crawler,
		embedder: embedder,
		chunker:  ch,
		state:    state,
	}
}

// IngestJob fetches every result page of a crawl job and ingests them.
func (s *Service) IngestJob(ctx context.Context, jobID string) error {
	pages, err := s.crawler.FetchAll(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to fetch crawl job %s: %w", jobID, err)
	}
	log.Printf("[ingest] fetched %d items for job %s", len(pages), jobID)
	return s.IngestPages(ctx, pages)
}

// IngestPDF extracts a local PDF into page-marked markdown and ingests it
// through the same path as crawled documents. When cropTop/cropBottom are
// positive the header/footer bands are cut off first.
func (s *Service) IngestPDF(ctx context.Context, path string, cropTop, cropBottom float64) error {
	source := path
	if cropTop > 0 || cropBottom > 0 {
		tmp, err := os.CreateTemp("", "sambot-crop-*.pdf")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := internal.CropHeaderFooter(path, tmp.Name(), cropTop, cropBottom); err != nil {
			return err
		}
		source = tmp.Name()
	}

	md, err := internal.PDFToMarkdown(source)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	page := crawl.Page{
		Markdown: md,
		Metadata: crawl.Metadata{
			SourceURL: "file://" + abs,
			Title:     filepath.Base(path),
		},
	}
	return s.IngestPages(ctx, []crawl.Page{page})
}

// IngestPages cleans, chunks, embeds and upserts crawl result pages.
// Pages without a URL are skipped; pages with empty markdown still get a
// document row so the crawl inventory stays complete.
func (s *Service) IngestPages(ctx context.Context, pages []crawl.Page) error {
	var docs []types.Document
	var chunks []types.Chunk

	log.Printf("[ingest] starting ingestion for %d rows", len(pages))

	for idx, page := range pages {
		md := strings.TrimSpace(chunker.CleanText(page.Markdown))
		url := strings.TrimSpace(chunker.CleanText(page.Metadata.URL()))
		if url == "" {
			s.logger.Warn("skipping page without URL", "index", idx)
			continue
		}
		title := strings.TrimSpace(chunker.CleanText(page.Metadata.Title))

		docType := types.DocTypeHTML
		if strings.HasSuffix(strings.ToLower(url), ".pdf") {
			docType = types.DocTypePDF
		}
		docID := types.NewDocID(url)

		docs = append(docs, types.Document{
			DocID:   docID,
			URL:     url,
			Title:   title,
			State:   s.state,
			DocType: docType,
		})

		if md == "" {
			continue
		}
		pieces := s.chunker.ChunkMarkdown(md)
		if len(pieces) == 0 {
			continue
		}

		for i := 0; i < len(pieces); i += embedBatchSize {
			end := min(i+embedBatchSize, len(pieces))
			batch := pieces[i:end]

			log.Printf("[embed] doc %d/%d • batch %d/%d", idx+1, len(pages),
				i/embedBatchSize+1, (len(pieces)+embedBatchSize-1)/embedBatchSize)

			texts := make([]string, len(batch))
			for j, p := range batch {
				texts[j] = p.Text
			}
			vecs, err := s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks for %s: %w", url, err)
			}

			for j, p := range batch {
				seq := i + j
				chunks = append(chunks, types.Chunk{
					DocID:           docID,
					ChunkID:         fmt.Sprintf("%06d", seq),
					Seq:             seq,
					Text:            p.Text,
					Heading:         p.Heading,
					PageNum:         p.PageNum,
					Embedding:       vecs[j],
					EmbeddingFailed: model.IsZeroVector(vecs[j]),
				})
			}
		}

		if (idx+1)%50 == 0 {
			log.Printf("[ingest] processed %d/%d docs so far", idx+1, len(pages))
		}
	}

	if err := s.store.UpsertDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	log.Printf("[db] upserted %d documents", len(docs))

	if err := s.store.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	log.Printf("[db] upserted %d chunks", len(chunks))

	return nil
}

package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	DefaultEmbedModel = "text-embedding-3-small"

	// EmbeddingDim must match both the embedding model output and the
	// vector(N) column in the chunks table.
	EmbeddingDim = 1536
)

// Embedder turns texts into fixed-length vectors, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type OpenAIEmbedder struct {
	client *Client
	model  string
	logger *slog.Logger
}

func NewOpenAIEmbedder(client *Client, embedModel string) *OpenAIEmbedder {
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	return &OpenAIEmbedder{
		client: client,
		model:  embedModel,
		logger: slog.Default(),
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds all texts with one API call. When the batch blows the
// model's context limit it falls back to one call per text, and a text that
// still fails degrades to a zero vector instead of failing the whole batch.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := e.embed(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if !isContextLengthError(err) {
		return nil, err
	}

	e.logger.Warn("embedding batch too large, falling back to per-item calls", "texts", len(texts))

	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		single, err := e.embed(ctx, []string{text})
		if err != nil {
			// Keep ingestion moving; the chunk is stored flagged so it
			// can be re-embedded later.
			e.logger.Error("failed to embed single text, using zero vector", "index", i, "error", err)
			out = append(out, make([]float32, EmbeddingDim))
			continue
		}
		out = append(out, single[0])
	}
	return out, nil
}

// IsZeroVector reports whether v is the degraded all-zero embedding.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func (e *OpenAIEmbedder) embed(ctx context.Context, input []string) ([][]float32, error) {
	body, err := e.client.PostJSON(ctx, "/embeddings", embeddingRequest{
		Model: e.model,
		Input: input,
	})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embeddings: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(input), len(resp.Data))
	}

	// The API documents input order but index is authoritative.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func isContextLengthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "maximum context length")
}

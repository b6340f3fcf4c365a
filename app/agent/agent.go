package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sambot/model"
	"sambot/types"
)

const (
	// retrieveK is how many rows the similarity search returns.
	retrieveK = 24
	// citePassages rows feed context building and citation dedup.
	citePassages = 8
	// promptPassages of those actually end up in the prompt text, to
	// bound LLM token cost.
	promptPassages = 6
	// maxSources caps the appended Sources list.
	maxSources = 4

	noSourcesMarker = "(Sources not available)"
)

const rewriteSystem = "Rewrite the user's query into a precise, domain-specific search query " +
	"for regulatory/provider manuals. Avoid answering; only rewrite."

const answerSystem = "You are SAMBOT. Answer strictly from the provided passages. " +
	"Be concise. Do NOT generate a Sources section — the system will add one."

// Retriever is the similarity search the agent needs; store.DBStorer
// satisfies it.
type Retriever interface {
	Search(ctx context.Context, queryVec []float32, state string, k int) ([]types.RetrievedRow, error)
}

// Agent answers questions over the chunk store: rewrite the query, embed
// it, retrieve passages, synthesize an answer and append deterministic
// source citations.
type Agent struct {
	chat      model.Completer
	embedder  model.Embedder
	retriever Retriever
	logger    *slog.Logger
}

func New(chat model.Completer, embedder model.Embedder, retriever Retriever) *Agent {
	return &Agent{
		chat:      chat,
		embedder:  embedder,
		retriever: retriever,
		logger:    slog.Default(),
	}
}

// Rewrite turns a raw user question into a search query tuned for
// provider-manual retrieval. A failed call is fatal to the request; there
// is no local fallback worth having.
func (a *Agent) Rewrite(ctx context.Context, question string) (string, error) {
	rewritten, err := a.chat.Complete(ctx, rewriteSystem, question)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite query: %w", err)
	}
	return rewritten, nil
}

func (a *Agent) Answer(ctx context.Context, question, state string) (*types.SearchResponse, error) {
	rewritten, err := a.Rewrite(ctx, question)
	if err != nil {
		return nil, err
	}
	a.logger.Info("rewrote query", "original", question, "rewritten", rewritten)

	vecs, err := a.embedder.EmbedBatch(ctx, []string{rewritten})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := a.retriever.Search(ctx, vecs[0], state, retrieveK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	passages, cites := buildContext(rows)

	prompt := fmt.Sprintf("Question: %s\n\nOptimized Query: %s\n\nPassages:\n%s\n\nWrite only the answer.",
		question, rewritten, strings.Join(passages, "\n\n---\n\n"))

	answer, err := a.chat.Complete(ctx, answerSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}

	if len(cites) > maxSources {
		cites = cites[:maxSources]
	}
	answer += formatSources(cites)

	return &types.SearchResponse{
		Answer:    answer,
		Sources:   cites,
		State:     state,
		Timestamp: time.Now(),
	}, nil
}

// buildContext formats the top rows into prompt passages and collects
// citation URLs in first-seen order. More rows feed citations than the
// prompt itself, so sources stay useful even when the prompt is tight.
func buildContext(rows []types.RetrievedRow) (passages []string, cites []string) {
	seen := make(map[string]struct{})
	for i, row := range rows {
		if i >= citePassages {
			break
		}
		if len(passages) < promptPassages {
			passages = append(passages, fmt.Sprintf("[%s] %s", row.Title, row.Text))
		}
		cite := row.URL
		if row.PageNum != nil {
			cite = fmt.Sprintf("%s#page=%d", row.URL, *row.PageNum)
		}
		if _, ok := seen[cite]; !ok {
			seen[cite] = struct{}{}
			cites = append(cites, cite)
		}
	}
	return passages, cites
}

func formatSources(cites []string) string {
	if len(cites) == 0 {
		return "\n\n" + noSourcesMarker
	}
	var b strings.Builder
	b.WriteString("\n\nSources:")
	for _, c := range cites {
		b.WriteString("\n- ")
		b.WriteString(c)
	}
	return b.String()
}

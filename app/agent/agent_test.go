package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sambot/types"
)

type fakeChat struct {
	calls   []string // system prompts, in order
	prompts []string // user prompts, in order
	replies []string
	err     error
}

func (f *fakeChat) Complete(_ context.Context, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, system)
	f.prompts = append(f.prompts, user)
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type fakeEmbedder struct {
	embedded []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.embedded = append(f.embedded, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

type fakeRetriever struct {
	rows  []types.RetrievedRow
	state string
	k     int
}

func (f *fakeRetriever) Search(_ context.Context, _ []float32, state string, k int) ([]types.RetrievedRow, error) {
	f.state = state
	f.k = k
	return f.rows, nil
}

func row(url, title string) types.RetrievedRow {
	return types.RetrievedRow{URL: url, Title: title, Text: "text of " + title}
}

func TestAnswerCitationDedup(t *testing.T) {
	// 3 distinct URLs plus 5 rows from a repeated 4th: exactly 4 unique
	// sources, first-seen order, capped at 4.
	repeated := "https://a.gov/manual.pdf"
	rows := []types.RetrievedRow{
		row("https://a.gov/one", "one"),
		row(repeated, "rep1"),
		row(repeated, "rep2"),
		row("https://a.gov/two", "two"),
		row(repeated, "rep3"),
		row("https://a.gov/three", "three"),
		row(repeated, "rep4"),
		row(repeated, "rep5"),
	}

	chat := &fakeChat{replies: []string{"better query", "the answer"}}
	ret := &fakeRetriever{rows: rows}
	a := New(chat, &fakeEmbedder{}, ret)

	resp, err := a.Answer(context.Background(), "what is required?", "CT")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://a.gov/one",
		repeated,
		"https://a.gov/two",
		"https://a.gov/three",
	}, resp.Sources)

	assert.Contains(t, resp.Answer, "Sources:")
	assert.Equal(t, 1, strings.Count(resp.Answer, repeated))
	assert.Equal(t, "CT", ret.state)
	assert.Equal(t, retrieveK, ret.k)
}

func TestAnswerPageFragment(t *testing.T) {
	page := 12
	rows := []types.RetrievedRow{
		{URL: "https://a.gov/manual.pdf", Title: "Manual", Text: "rules", PageNum: &page},
	}

	chat := &fakeChat{replies: []string{"q", "answer"}}
	a := New(chat, &fakeEmbedder{}, &fakeRetriever{rows: rows})

	resp, err := a.Answer(context.Background(), "q?", "CT")
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "https://a.gov/manual.pdf#page=12", resp.Sources[0])
}

func TestAnswerNoPassages(t *testing.T) {
	chat := &fakeChat{replies: []string{"q", "no idea"}}
	a := New(chat, &fakeEmbedder{}, &fakeRetriever{})

	resp, err := a.Answer(context.Background(), "q?", "CT")
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.True(t, strings.HasSuffix(resp.Answer, noSourcesMarker))
	assert.NotContains(t, resp.Answer, "Sources:")
}

func TestAnswerPromptBounds(t *testing.T) {
	var rows []types.RetrievedRow
	for i := 1; i <= 10; i++ {
		rows = append(rows, row(fmt.Sprintf("https://a.gov/%d", i), fmt.Sprintf("title-%02d", i)))
	}

	chat := &fakeChat{replies: []string{"better query", "answer"}}
	a := New(chat, &fakeEmbedder{}, &fakeRetriever{rows: rows})

	_, err := a.Answer(context.Background(), "q?", "CT")
	require.NoError(t, err)

	require.Len(t, chat.prompts, 2)
	prompt := chat.prompts[1]
	assert.Contains(t, prompt, "title-06")
	assert.NotContains(t, prompt, "title-07", "prompt includes only the top passages")
	assert.Contains(t, prompt, "Optimized Query: better query")
	assert.Contains(t, prompt, "Write only the answer.")
}

func TestAnswerUsesRewrittenQueryForEmbedding(t *testing.T) {
	chat := &fakeChat{replies: []string{"tuned search query", "answer"}}
	emb := &fakeEmbedder{}
	a := New(chat, emb, &fakeRetriever{})

	_, err := a.Answer(context.Background(), "original question", "CT")
	require.NoError(t, err)

	require.Len(t, chat.calls, 2)
	assert.Equal(t, rewriteSystem, chat.calls[0])
	assert.Equal(t, answerSystem, chat.calls[1])
	assert.Equal(t, []string{"tuned search query"}, emb.embedded)
}

func TestAnswerRewriteFailureIsFatal(t *testing.T) {
	chat := &fakeChat{err: errors.New("llm down")}
	a := New(chat, &fakeEmbedder{}, &fakeRetriever{})

	_, err := a.Answer(context.Background(), "q?", "CT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rewrite")
}

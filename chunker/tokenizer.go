package chunker

import (
	"github.com/pkoukk/tiktoken-go"
)

// Encoding must match what the embedding model tokenizes with, so the
// chunker's token budgets line up with what the API actually counts.
const Encoding = "cl100k_base"

// Tokenizer turns text into token ids and back. The chunker only needs
// counting and windowing, so the interface stays this small.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}

// TikToken is the production Tokenizer backed by tiktoken's BPE tables.
type TikToken struct {
	enc *tiktoken.Tiktoken
}

func NewTikToken() (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, err
	}
	return &TikToken{enc: enc}, nil
}

func (t *TikToken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *TikToken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

func (t *TikToken) Count(text string) int {
	return len(t.Encode(text))
}

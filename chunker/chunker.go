package chunker

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultTarget is the soft token budget per chunk.
	DefaultTarget = 900
	// DefaultOverlap is the token overlap between consecutive windows.
	DefaultOverlap = 100

	// sectionSlack lets a heading section run slightly over the target
	// before it gets split into windows.
	sectionSlack = 100
)

var (
	// Lines like "Page 12" as emitted by PDF extraction.
	pageMarkerRe = regexp.MustCompile(`(?im)^\s*page\s+(\d+)\b`)
	// Markdown headings, levels 1-3.
	headingRe = regexp.MustCompile(`(?m)^(#{1,3}\s.*)$`)
)

// Piece is one chunk of a document's markdown. Heading and PageNum are
// mutually exclusive: page-marker documents carry PageNum, heading
// documents carry Heading, and text before the first heading carries
// neither.
type Piece struct {
	Text    string
	Heading *string
	PageNum *int
}

// Chunker splits markdown into token-bounded pieces.
type Chunker struct {
	tok     Tokenizer
	target  int
	overlap int
}

func New(tok Tokenizer, target, overlap int) *Chunker {
	if target <= 0 {
		target = DefaultTarget
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{tok: tok, target: target, overlap: overlap}
}

// ChunkMarkdown segments one document. Page markers take priority: if any
// "Page N" line exists the document is partitioned by pages, otherwise it
// is split on markdown headings. Either way long segments are windowed.
func (c *Chunker) ChunkMarkdown(md string) []Piece {
	if marks := pageMarkerRe.FindAllStringSubmatchIndex(md, -1); len(marks) > 0 {
		return c.chunkByPages(md, marks)
	}
	return c.chunkByHeadings(md)
}

// chunkByPages partitions md between consecutive marker positions. Text
// before the first marker has no page number and is dropped.
func (c *Chunker) chunkByPages(md string, marks [][]int) []Piece {
	var pieces []Piece
	for k, m := range marks {
		end := len(md)
		if k+1 < len(marks) {
			end = marks[k+1][0]
		}
		seg := strings.TrimSpace(md[m[0]:end])
		page, err := strconv.Atoi(md[m[2]:m[3]])
		if err != nil {
			continue
		}
		for _, w := range c.sliding(seg) {
			p := page
			pieces = append(pieces, Piece{Text: w, PageNum: &p})
		}
	}
	return pieces
}

func (c *Chunker) chunkByHeadings(md string) []Piece {
	var pieces []Piece

	heads := headingRe.FindAllStringIndex(md, -1)

	preEnd := len(md)
	if len(heads) > 0 {
		preEnd = heads[0][0]
	}
	if pre := strings.TrimSpace(md[:preEnd]); pre != "" {
		for _, w := range c.sliding(pre) {
			pieces = append(pieces, Piece{Text: w})
		}
	}

	for i, h := range heads {
		heading := strings.TrimSpace(md[h[0]:h[1]])
		bodyEnd := len(md)
		if i+1 < len(heads) {
			bodyEnd = heads[i+1][0]
		}
		body := strings.TrimSpace(md[h[1]:bodyEnd])

		sec := heading
		if body != "" {
			sec = heading + "\n\n" + body
		}
		htxt := strings.TrimSpace(strings.TrimLeft(heading, "# "))

		// Sections only slightly over budget stay whole.
		if c.tok.Count(sec) <= c.target+sectionSlack {
			pieces = append(pieces, Piece{Text: sec, Heading: &htxt})
			continue
		}
		for _, w := range c.sliding(sec) {
			ht := htxt
			pieces = append(pieces, Piece{Text: w, Heading: &ht})
		}
	}
	return pieces
}

// sliding emits decoded windows of up to target tokens, stepping by
// target-overlap, so consecutive windows share roughly overlap tokens and
// the whole token sequence is covered. The final partial window is kept.
func (c *Chunker) sliding(text string) []string {
	toks := c.tok.Encode(text)
	step := c.target - c.overlap
	if step < 1 {
		step = 1
	}

	var out []string
	for i := 0; i < len(toks); i += step {
		end := i + c.target
		if end > len(toks) {
			end = len(toks)
		}
		out = append(out, c.tok.Decode(toks[i:end]))
		if i+c.target >= len(toks) {
			break
		}
	}
	return out
}

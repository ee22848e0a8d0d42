package text

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/pdfchat/internal/domain/document"
)

// Chunker defaults.
const (
	DefaultMaxChunkSize = 500
	DefaultChunkOverlap = 50
)

// Separators in priority order: paragraph, line, sentence, word.
// Each separator stays attached to the end of the piece it terminates.
var separators = []*regexp.Regexp{
	regexp.MustCompile(`\n\n`),
	regexp.MustCompile(`\n`),
	regexp.MustCompile(`[.!?] `),
	regexp.MustCompile(` `),
}

// Chunker splits section text into bounded, overlapping, sentence-aligned chunks.
// Sizes are measured in runes.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a Chunker. Non-positive values fall back to defaults;
// overlap is clamped below maxSize.
func NewChunker(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= maxSize {
		overlap = maxSize / 10
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// Chunk splits one section. Every chunk inherits the section title.
// IDs are left empty; the ingest pipeline assigns them.
func (c *Chunker) Chunk(sec document.Section, page int, sourceID string) []document.Chunk {
	parts := c.Split(sec.Content)
	chunks := make([]document.Chunk, 0, len(parts))
	for _, p := range parts {
		ch, err := document.NewChunk("", p, sec.Title, page, sourceID)
		if err != nil {
			// empty after trimming
			continue
		}
		chunks = append(chunks, ch)
	}
	return chunks
}

// Split returns the trimmed chunk texts for s.
//
// Text that already fits is returned as a single trimmed chunk. Otherwise the text is split
// recursively by separator priority, pieces are merged back up to maxSize with trailing
// pieces re-included as overlap, and every chunk is snapped back to its last sentence end.
// A single unsplittable run longer than maxSize is kept whole rather than cut mid-word.
func (c *Chunker) Split(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if runeLen(trimmed) <= c.maxSize {
		return []string{trimmed}
	}

	parts := c.split(trimmed, separators)
	out := parts[:0]
	for _, p := range parts {
		p = snapToSentence(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Chunker) split(s string, seps []*regexp.Regexp) []string {
	idx := -1
	for i, re := range seps {
		if re.MatchString(s) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []string{s}
	}
	rest := seps[idx+1:]

	var out, pending []string
	for _, piece := range splitAfter(s, seps[idx]) {
		if runeLen(piece) <= c.maxSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending)...)
			pending = nil
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending)...)
	}
	return out
}

// merge packs consecutive pieces into windows of at most maxSize runes.
// When a window is emitted, pieces are dropped from its front until at most
// overlap runes remain; those carry over into the next window.
func (c *Chunker) merge(pieces []string) []string {
	var (
		out    []string
		window []string
		total  int
	)

	emit := func() {
		if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
			out = append(out, doc)
		}
	}

	for _, p := range pieces {
		l := runeLen(p)
		if total+l > c.maxSize && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > c.overlap || total+l > c.maxSize) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += l
	}
	emit()

	return out
}

// splitAfter cuts s after every match of re, keeping the separator on the left piece.
func splitAfter(s string, re *regexp.Regexp) []string {
	var out []string
	prev := 0
	for _, m := range re.FindAllStringIndex(s, -1) {
		if m[1] > prev {
			out = append(out, s[prev:m[1]])
		}
		prev = m[1]
	}
	if prev < len(s) {
		out = append(out, s[prev:])
	}
	return out
}

// snapToSentence truncates s after its last '.', '!' or '?' unless it already ends with one.
// Without any terminator s is returned unchanged.
func snapToSentence(s string) string {
	if s == "" || strings.ContainsAny(s[len(s)-1:], ".!?") {
		return s
	}
	if i := strings.LastIndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Package text turns raw page text into titled sections and bounded chunks.
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinLineLength is the header/footer heuristic threshold.
const DefaultMinLineLength = 20

var (
	// newlines survive so the segmenter can still see line boundaries
	horizontalSpace    = regexp.MustCompile(`[ \t\f\v\r\x{00a0}]+`)
	trailingPageNumber = regexp.MustCompile(`\s*\b\d+$`)

	artifactFixer = strings.NewReplacer(
		"â€¢", "", // UTF-8 bullet decoded as cp1252
		"•", "",
		"|", "I", // OCR reads capital I as a pipe
	)
)

// Normalizer cleans raw extracted page text.
//
// Lines shorter than MinLineLength are dropped when the page has more than two lines.
// This strips running headers and footers but also drops legitimate short lines;
// it is a precision/recall tradeoff, tune it per corpus. Heading lines are exempt
// when KeepHeadings is set so that section detection still works.
type Normalizer struct {
	MinLineLength int
	KeepHeadings  bool
}

// NewNormalizer creates a Normalizer. minLineLength <= 0 disables the short-line filter.
func NewNormalizer(minLineLength int, keepHeadings bool) *Normalizer {
	return &Normalizer{MinLineLength: minLineLength, KeepHeadings: keepHeadings}
}

// Normalize never fails; it may return "".
func (n *Normalizer) Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = artifactFixer.Replace(s)
	s = horizontalSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(trailingPageNumber.ReplaceAllString(strings.TrimSpace(line), ""))
	}

	if len(lines) > 2 && n.MinLineLength > 0 {
		kept := lines[:0]
		for _, line := range lines {
			if utf8.RuneCountInString(line) >= n.MinLineLength || (n.KeepHeadings && IsHeading(line)) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

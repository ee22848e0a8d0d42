package text

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/pdfchat/internal/domain/document"
)

// "Chapter 3: Title", "SECTION 2. Title", "section A Title"
var headingRe = regexp.MustCompile(`(?i)^(?:chapter|section)\s+[\p{L}\p{N}]+(?:[:.]\s*|\s+)(\S.*)$`)

// HeadingTitle returns the captured title when line is a chapter/section heading.
func HeadingTitle(line string) (string, bool) {
	m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(m[1])
	return title, title != ""
}

// IsHeading reports whether line opens a new section.
func IsHeading(line string) bool {
	_, ok := HeadingTitle(line)
	return ok
}

// Segment splits cleaned text into sections in a single line-by-line pass.
// Text before the first heading belongs to DefaultSectionTitle. Empty sections are not emitted.
func Segment(cleaned string) []document.Section {
	var (
		sections []document.Section
		buf      strings.Builder
		title    = document.DefaultSectionTitle
	)

	flush := func() {
		if content := strings.TrimSpace(buf.String()); content != "" {
			sections = append(sections, document.Section{
				Title:   title,
				Content: content,
				Order:   len(sections),
			})
		}
		buf.Reset()
	}

	for _, line := range strings.Split(cleaned, "\n") {
		if t, ok := HeadingTitle(line); ok {
			flush()
			title = t
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()

	return sections
}

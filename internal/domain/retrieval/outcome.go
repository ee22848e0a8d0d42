// Package retrieval holds the result types of document retrieval.
package retrieval

import "fmt"

// Kind tells the caller which answer path to take.
type Kind int

const (
	// KindGeneral means the router classified the query as general conversation.
	KindGeneral Kind = iota
	// KindNoRelevantMatches means retrieval ran but nothing survived the filters.
	KindNoRelevantMatches
	// KindGrounded means Matches holds ranked context for a grounded answer.
	KindGrounded
)

func (k Kind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindNoRelevantMatches:
		return "no_relevant_matches"
	case KindGrounded:
		return "grounded"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Match is one ranked, filtered source snippet.
type Match struct {
	Content    string // full chunk text, handed to the language model
	Snippet    string // best sentence for display, or Content when short
	Page       int
	Source     string // opaque source id
	SourceName string // human-readable file name
	Section    string
	Similarity float64 // recomputed query/content cosine
}

// Citation formats the match as "Document: <name>, Page: <n>".
func (m Match) Citation() string {
	return fmt.Sprintf("Document: %s, Page: %d", m.SourceName, m.Page)
}

// Outcome is the result of a successful retrieval. Provider failures are errors, never an Outcome.
type Outcome struct {
	kind    Kind
	matches []Match
}

// General returns the outcome for a query routed to open conversation.
func General() Outcome { return Outcome{kind: KindGeneral} }

// NoRelevantMatches returns the outcome for a document query that found nothing usable.
func NoRelevantMatches() Outcome { return Outcome{kind: KindNoRelevantMatches} }

// Grounded returns the outcome carrying ranked matches. An empty slice yields NoRelevantMatches.
func Grounded(matches []Match) Outcome {
	if len(matches) == 0 {
		return NoRelevantMatches()
	}
	return Outcome{kind: KindGrounded, matches: matches}
}

// Kind returns the outcome kind.
func (o Outcome) Kind() Kind { return o.kind }

// Matches returns the ranked matches (empty unless grounded).
func (o Outcome) Matches() []Match { return o.matches }

// UseGeneral reports whether the caller should answer without document context.
func (o Outcome) UseGeneral() bool { return o.kind != KindGrounded }

// Citations returns one "Document: X, Page: Y" line per match.
func (o Outcome) Citations() []string {
	out := make([]string, len(o.matches))
	for i, m := range o.matches {
		out[i] = m.Citation()
	}
	return out
}

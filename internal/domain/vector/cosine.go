// Package vector holds similarity math over embedding vectors.
package vector

import (
	"errors"
	"fmt"
	"math"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// ErrDegenerate signals a zero-norm vector; cosine similarity is undefined for it.
var ErrDegenerate = fmt.Errorf("zero-norm vector: %w", domain.ErrDegenerateInput)

// Cosine returns dot(a, b) / (|a| * |b|), in [-1, 1].
// Vectors must have equal, non-zero length and non-zero norm.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine %d vs %d: %w", len(a), len(b), domain.ErrVectorDimMismatch)
	}
	if len(a) == 0 {
		return 0, ErrDegenerate
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, ErrDegenerate
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// float rounding can push parallel vectors slightly past 1
	return math.Max(-1, math.Min(1, sim)), nil
}

// MaxCosine returns the highest similarity between q and any of refs, and its index.
// Degenerate references are skipped; a degenerate q or a length mismatch is an error.
// idx is -1 when refs is empty.
func MaxCosine(q []float32, refs [][]float32) (best float64, idx int, err error) {
	idx = -1
	best = math.Inf(-1)
	for i, r := range refs {
		sim, err := Cosine(q, r)
		if err != nil {
			if errors.Is(err, domain.ErrVectorDimMismatch) || isZero(q) {
				return 0, -1, err
			}
			continue
		}
		if sim > best {
			best, idx = sim, i
		}
	}
	if idx < 0 {
		return 0, -1, nil
	}
	return best, idx, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

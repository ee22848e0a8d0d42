package text

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "collapses horizontal whitespace",
			in:   "The   quick\t\tbrown fox jumps",
			want: "The quick brown fox jumps",
		},
		{
			name: "strips trailing page number",
			in:   "The quarterly results were strong overall   12",
			want: "The quarterly results were strong overall",
		},
		{
			name: "keeps numbers glued to words",
			in:   "Totals are listed in table12",
			want: "Totals are listed in table12",
		},
		{
			name: "removes bullet artifacts",
			in:   "â€¢ Revenue grew • steadily",
			want: "Revenue grew steadily",
		},
		{
			name: "maps pipe to capital I",
			in:   "|nvestment in |T",
			want: "Investment in IT",
		},
		{
			name: "drops short lines when more than two lines",
			in: "ACME Corp\n" +
				"The quarterly revenue increased by twenty percent.\n" +
				"Page 3\n" +
				"Costs were reduced across every business unit.",
			want: "The quarterly revenue increased by twenty percent.\n" +
				"Costs were reduced across every business unit.",
		},
		{
			name: "keeps short lines when two lines or fewer",
			in:   "Short\nAlso short",
			want: "Short\nAlso short",
		},
		{
			name: "crlf line endings",
			in:   "The first line is long enough to stay.\r\nok\r\nThe third line is long enough to stay.",
			want: "The first line is long enough to stay.\nThe third line is long enough to stay.",
		},
		{
			name: "empty input",
			in:   "   \n\t",
			want: "",
		},
	}

	n := NewNormalizer(DefaultMinLineLength, true)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := n.Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalize_HeadingExemption(t *testing.T) {
	in := "An introduction line that is long enough.\n" +
		"Section 2: Results\n" +
		"Revenue grew by twenty percent this year."

	kept := NewNormalizer(DefaultMinLineLength, true).Normalize(in)
	if kept != in {
		t.Errorf("expected heading kept, got %q", kept)
	}

	dropped := NewNormalizer(DefaultMinLineLength, false).Normalize(in)
	want := "An introduction line that is long enough.\nRevenue grew by twenty percent this year."
	if dropped != want {
		t.Errorf("expected heading dropped, got %q", dropped)
	}
}

func TestNormalize_ThresholdIsConfigurable(t *testing.T) {
	in := "tiny\nmedium line\nthis one is definitely long"

	if got := NewNormalizer(5, false).Normalize(in); got != "medium line\nthis one is definitely long" {
		t.Errorf("threshold 5: got %q", got)
	}
	if got := NewNormalizer(0, false).Normalize(in); got != in {
		t.Errorf("threshold 0 must disable the filter, got %q", got)
	}
}

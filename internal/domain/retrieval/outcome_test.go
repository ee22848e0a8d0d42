package retrieval

import "testing"

func TestGrounded_EmptyIsNoRelevantMatches(t *testing.T) {
	o := Grounded(nil)
	if o.Kind() != KindNoRelevantMatches {
		t.Errorf("expected %s, got %s", KindNoRelevantMatches, o.Kind())
	}
	if !o.UseGeneral() {
		t.Error("expected general fallback")
	}
}

func TestOutcome_UseGeneral(t *testing.T) {
	if !General().UseGeneral() {
		t.Error("general outcome must use general path")
	}
	if Grounded([]Match{{Content: "x"}}).UseGeneral() {
		t.Error("grounded outcome must not use general path")
	}
}

func TestOutcome_Citations(t *testing.T) {
	o := Grounded([]Match{
		{SourceName: "report.pdf", Page: 4},
		{SourceName: "annex.pdf", Page: 1},
	})
	got := o.Citations()
	want := []string{"Document: report.pdf, Page: 4", "Document: annex.pdf, Page: 1"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("citation %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKind_String(t *testing.T) {
	if KindGrounded.String() != "grounded" || Kind(42).String() != "kind(42)" {
		t.Errorf("unexpected strings %q %q", KindGrounded, Kind(42))
	}
}

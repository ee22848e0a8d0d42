package db

import "testing"

func TestTagQuery_EscapesURL(t *testing.T) {
	got := TagQuery("source", "https://files.local/Q1 report.pdf")
	want := `@source:{https\:\/\/files\.local\/Q1\ report\.pdf}`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestTagsQuery(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"empty", nil, ""},
		{"single", map[string]string{"source": "a"}, "@source:{a}"},
		{"sorted by field", map[string]string{"source": "a", "model": "b"}, "@model:{b} @source:{a}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TagsQuery(tt.tags); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

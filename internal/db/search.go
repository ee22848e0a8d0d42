package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// VectorField defaults to "vector".
	VectorField string
	// Tags pre-filters by exact TAG match (field -> value).
	Tags         map[string]string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key string
	// Score is cosine similarity in [0, 1] for KNN hits, 0 for list hits.
	Score  float64
	Fields map[string]string
}

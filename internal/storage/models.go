package storage

// Point is one embedded chunk ready to be written.
type Point struct {
	ID      string // UUID
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// SearchRequest is a nearest-neighbour query against one collection.
type SearchRequest struct {
	Collection     string
	Vector         []float32
	Limit          int
	ScoreThreshold float32
	// Filter requires exact keyword matches on payload fields (e.g. user_id).
	Filter map[string]string
}

// SourceSummary describes one indexed source document.
type SourceSummary struct {
	DocumentID string
	SourceKey  string
	Filename   string
	UserID     string
	Chunks     int
}

// CollectionInfo contains collection statistics
type CollectionInfo struct {
	PointsCount uint64
}

// DefaultCollection is the collection uploads are indexed into unless configured otherwise.
const DefaultCollection = "motor_documents"

// VectorName is the named vector chunks are stored under.
const VectorName = "content"

// DefaultDimension is the embedding size for text-embedding-3-small.
const DefaultDimension = 1536

// Payload fields with keyword indexes.
var indexedFields = []string{
	"document_id",
	"source_key",
	"user_id",
	"content_type",
}

package domain

import "time"

// EmbeddingDimensions is the fixed vector size of every stored chunk embedding.
const EmbeddingDimensions = 1024

// KnowledgeChunk is one embedded slice of a knowledge item. ChunkIndex is
// contiguous from 0 within an item and order-significant.
type KnowledgeChunk struct {
	ID            string
	ItemID        string
	OrgID         string
	ChunkIndex    int
	Content       string
	Embedding     []float32
	CharCount     int
	TokenEstimate int
	CreatedAt     time.Time
}

package corpus

import "time"

// DocRecord represents an ingested document file.
type DocRecord struct {
	ID         int64
	Path       string
	Hash       string
	IngestedAt time.Time
	SizeBytes  int64
}

// Chunk is a span of document text used for retrieval.
type Chunk struct {
	ID      int64
	DocID   int64
	ChunkID string // stable identifier, "<file>::chunk<N>"
	Source  string // source file name
	Seq     int    // position within the source file
	Content string
}

// Scored pairs a chunk with its retrieval score. Higher is better.
type Scored struct {
	Chunk Chunk
	Score float64
}

package corpus

import (
	"fmt"
	"strings"
)

// DefaultChunkSize is the target chunk length in bytes.
const DefaultChunkSize = 400

// SplitChunks packs a document's paragraphs into chunks of at most size
// bytes. Paragraphs are separated by blank lines; adjacent paragraphs are
// joined with a single space while they fit. A paragraph larger than size
// becomes a chunk on its own. Chunk IDs are "<source>::chunk<N>" with N
// counting from zero in document order.
func SplitChunks(source, text string, size int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []Chunk
	var current string
	seq := 0

	flush := func() {
		if current == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ChunkID: fmt.Sprintf("%s::chunk%d", source, seq),
			Source:  source,
			Seq:     seq,
			Content: strings.TrimSpace(current),
		})
		seq++
		current = ""
	}

	for _, p := range paragraphs {
		if len(current)+len(p)+1 <= size {
			if current == "" {
				current = p
			} else {
				current = current + " " + p
			}
		} else {
			flush()
			current = p
		}
	}
	flush()

	return chunks
}

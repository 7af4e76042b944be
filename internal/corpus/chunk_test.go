package corpus

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunksPacksParagraphs(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird paragraph here."
	chunks := SplitChunks("policy.md", text, 60)

	require.Len(t, chunks, 2)
	assert.Equal(t, "First paragraph here. Second paragraph here.", chunks[0].Content)
	assert.Equal(t, "Third paragraph here.", chunks[1].Content)
}

func TestSplitChunksIDsAreSequential(t *testing.T) {
	text := strings.Repeat("A paragraph of policy text.\n\n", 10)
	chunks := SplitChunks("returns.md", text, 50)

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, "returns.md", c.Source)
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, fmt.Sprintf("returns.md::chunk%d", i), c.ChunkID)
	}
}

func TestSplitChunksOversizedParagraph(t *testing.T) {
	big := strings.Repeat("word ", 200) // ~1000 bytes, over any sane limit
	text := "Small intro.\n\n" + big + "\n\nSmall outro."
	chunks := SplitChunks("doc.md", text, 400)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Small intro.", chunks[0].Content)
	assert.Greater(t, len(chunks[1].Content), 400)
	assert.Equal(t, "Small outro.", chunks[2].Content)
}

func TestSplitChunksEmptyInput(t *testing.T) {
	assert.Empty(t, SplitChunks("doc.md", "", 400))
	assert.Empty(t, SplitChunks("doc.md", "\n\n\n\n   \n\n", 400))
}

func TestSplitChunksDefaultSize(t *testing.T) {
	text := "One paragraph.\n\nAnother paragraph."
	chunks := SplitChunks("doc.md", text, 0)

	// Both fit well under the default 400 bytes, so they pack together.
	require.Len(t, chunks, 1)
	assert.Equal(t, "One paragraph. Another paragraph.", chunks[0].Content)
	assert.Equal(t, "doc.md::chunk0", chunks[0].ChunkID)
}

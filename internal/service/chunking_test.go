package service

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDocument(r *rand.Rand) string {
	var paragraphs []string
	for p := 0; p < 1+r.Intn(12); p++ {
		var sentences []string
		for s := 0; s < 1+r.Intn(15); s++ {
			words := make([]string, 3+r.Intn(38))
			for w := range words {
				n := 1 + r.Intn(10)
				b := make([]byte, n)
				for i := range b {
					b[i] = byte('a' + r.Intn(26))
				}
				words[w] = string(b)
			}
			sentences = append(sentences, strings.Join(words, " ")+[]string{".", "!", "?"}[r.Intn(3)])
		}
		paragraphs = append(paragraphs, strings.Join(sentences, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestChunkText_EmptyInput(t *testing.T) {
	assert.Empty(t, chunkText("", DefaultChunkConfig()))
	assert.Empty(t, chunkText(" \n\r\n\t \n", DefaultChunkConfig()))
}

func TestChunkText_SingleChunkWhenShort(t *testing.T) {
	chunks := chunkText("First paragraph.\r\n\r\n\r\n\r\nSecond paragraph.", DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 35, chunks[0].CharCount)
	assert.Equal(t, 8, chunks[0].TokenEstimate)
}

func TestChunkText_DefaultsWhenUnset(t *testing.T) {
	text := strings.Repeat("word ", 400)
	assert.Equal(t, chunkText(text, DefaultChunkConfig()), chunkText(text, ChunkConfig{}))
}

func TestChunkText_ThreeChunkScenario(t *testing.T) {
	word := 0
	paragraph := func(n int) string {
		words := make([]string, n)
		for i := range words {
			words[i] = fmt.Sprintf("w%04d", word)
			word++
		}
		return strings.Join(words, " ")
	}
	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, paragraph(50))
	}
	paragraphs = append(paragraphs, paragraph(31))
	text := strings.Join(paragraphs, "\n\n")
	require.Equal(t, 3195, len(text))

	chunks := chunkText(text, ChunkConfig{MaxChars: 1500, Overlap: 200})

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, c.CharCount, 1500)
		assert.Equal(t, c.CharCount/4, c.TokenEstimate)
	}
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Content)
		overlap := strings.Join(prev[len(prev)-40:], " ")
		assert.True(t, strings.HasPrefix(chunks[i].Content, overlap),
			"chunk %d should start with the last 40 words of chunk %d", i, i-1)
	}
}

func TestChunkText_SizeInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		text := randomDocument(r)
		for _, c := range chunkText(text, ChunkConfig{MaxChars: 500, Overlap: 100}) {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 500)
			assert.NotEmpty(t, strings.TrimSpace(c.Content))
		}
	}
}

func TestChunkText_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		text := randomDocument(r)
		chunks := chunkText(text, ChunkConfig{MaxChars: 400, Overlap: 80})
		require.NotEmpty(t, chunks)

		var rebuilt strings.Builder
		for j, c := range chunks {
			assert.Equal(t, j, c.Index)
			rebuilt.WriteString(string([]rune(c.Content)[c.overlap:]))
		}
		assert.Equal(t, squash(text), squash(rebuilt.String()))
	}
}

func TestChunkText_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	text := randomDocument(r) + "\n\n" + randomDocument(r)
	cfg := ChunkConfig{MaxChars: 600, Overlap: 150}

	first := chunkText(text, cfg)
	second := chunkText(text, cfg)
	assert.Equal(t, first, second)
}

func TestChunkText_SentenceFallback(t *testing.T) {
	sentence := strings.Repeat("alpha ", 15) + "end."
	paragraph := strings.TrimSpace(strings.Repeat(sentence+" ", 6))
	require.Greater(t, len(paragraph), 300)

	chunks := chunkText(paragraph, ChunkConfig{MaxChars: 300, Overlap: 0})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.CharCount, 300)
		assert.True(t, strings.HasSuffix(c.Content, "end."), "chunks should break on sentence boundaries: %q", c.Content)
	}
}

func TestChunkText_HardSplitOfOversizedSentence(t *testing.T) {
	long := strings.Repeat("x", 250)

	chunks := chunkText(long, ChunkConfig{MaxChars: 100, Overlap: 50})

	require.Len(t, chunks, 3)
	assert.Equal(t, 100, chunks[0].CharCount)
	assert.Equal(t, 100, chunks[1].CharCount)
	assert.Equal(t, 50, chunks[2].CharCount)
	assert.Equal(t, long, chunks[0].Content+chunks[1].Content+chunks[2].Content)
}

func TestChunkText_MultiByteRunes(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("Informação de devolução válida. ", 60))

	chunks := chunkText(text, ChunkConfig{MaxChars: 200, Overlap: 40})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 200)
	}
}

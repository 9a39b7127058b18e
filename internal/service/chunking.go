package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkConfig controls chunking for knowledge embeddings.
type ChunkConfig struct {
	MaxChars int
	Overlap  int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 1500,
		Overlap:  200,
	}
}

// Chunk is one ordered segment produced by chunkText.
type Chunk struct {
	Content       string
	Index         int
	CharCount     int
	TokenEstimate int

	// overlap is the rune length of the carried-over prefix, separator included.
	overlap int
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)

const (
	paragraphSep = "\n\n"
	sentenceSep  = " "
)

// unit is the smallest piece the accumulator works with: a paragraph, a
// sentence of an oversized paragraph, or a hard slice of an oversized sentence.
type unit struct {
	text string
	sep  string // joiner to the previous unit in the source text
}

// chunkText splits text into ordered, overlapping chunks no longer than
// cfg.MaxChars runes. Lengths are measured in runes. Empty input yields no
// chunks.
func chunkText(text string, cfg ChunkConfig) []Chunk {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	joined := strings.Join(paragraphs, paragraphSep)
	if runeLen(joined) <= cfg.MaxChars {
		return []Chunk{newChunk(joined, 0, 0)}
	}

	units := make([]unit, 0, len(paragraphs))
	for _, p := range paragraphs {
		units = append(units, splitUnit(p, cfg.MaxChars)...)
	}

	overlapWords := cfg.Overlap / 5
	chunks := make([]Chunk, 0, 4)
	var buf strings.Builder
	bufOverlap := 0

	flush := func() string {
		content := buf.String()
		chunks = append(chunks, newChunk(content, len(chunks), bufOverlap))
		buf.Reset()
		bufOverlap = 0
		return content
	}

	for _, u := range units {
		if buf.Len() == 0 {
			buf.WriteString(u.text)
			continue
		}
		if runeLen(buf.String())+runeLen(u.sep)+runeLen(u.text) <= cfg.MaxChars {
			buf.WriteString(u.sep)
			buf.WriteString(u.text)
			continue
		}

		prev := flush()
		seed := trailingWords(prev, overlapWords)
		sep := u.sep
		if sep == "" {
			sep = sentenceSep
		}
		if seed != "" && runeLen(seed)+runeLen(sep)+runeLen(u.text) <= cfg.MaxChars {
			buf.WriteString(seed)
			buf.WriteString(sep)
			bufOverlap = runeLen(seed) + runeLen(sep)
		}
		buf.WriteString(u.text)
	}
	if buf.Len() > 0 {
		flush()
	}

	return chunks
}

func newChunk(content string, index, overlap int) Chunk {
	n := runeLen(content)
	return Chunk{
		Content:       content,
		Index:         index,
		CharCount:     n,
		TokenEstimate: n / 4,
		overlap:       overlap,
	}
}

// splitParagraphs normalizes line endings and returns trimmed, non-empty
// blank-line-delimited paragraphs.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	raw := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitUnit breaks an oversized paragraph into sentences, and oversized
// sentences into slices of exactly maxChars runes (the last may be shorter).
func splitUnit(paragraph string, maxChars int) []unit {
	if runeLen(paragraph) <= maxChars {
		return []unit{{text: paragraph, sep: paragraphSep}}
	}

	var out []unit
	for i, s := range splitSentences(paragraph) {
		sep := sentenceSep
		if i == 0 {
			sep = paragraphSep
		}
		if runeLen(s) <= maxChars {
			out = append(out, unit{text: s, sep: sep})
			continue
		}
		runes := []rune(s)
		for start := 0; start < len(runes); start += maxChars {
			end := start + maxChars
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, unit{text: string(runes[start:end]), sep: sep})
			sep = ""
		}
	}
	return out
}

// splitSentences splits on '.', '!' or '?' followed by whitespace.
func splitSentences(paragraph string) []string {
	runes := []rune(paragraph)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, strings.TrimSpace(string(runes[start:i+1])))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			out = append(out, tail)
		}
	}
	return out
}

func trailingWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

package extract

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/cloo-solutions/kbpipe/internal/domain"
)

// maxInflatedStream bounds a single decompressed content stream.
const maxInflatedStream = 16 << 20

var (
	pdfStream   = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\n?endstream`)
	pdfShowText = regexp.MustCompile(`\[((?:\\.|[^\]\\])*)\]\s*TJ|\(((?:\\.|[^\\)])*)\)\s*(?:Tj|'|")|\bET\b`)
	pdfTJItem   = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)|(-?\d+(?:\.\d+)?)`)
)

// PDF extracts text from a PDF document. It prefers a structural parse and
// falls back to scanning content streams for show-text operators, then to a
// scan for printable prose. Results shorter than MinPDFChars are rejected as
// scanned or image-only documents.
func PDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrEmptyDocument
	}

	attempts := []func([]byte) string{
		parsePDF,
		scanShowText,
		func(b []byte) string { return strings.Join(printableProse(b), "\n") },
	}

	best := ""
	for _, attempt := range attempts {
		text := Normalize(attempt(data))
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best = text
		}
		if utf8.RuneCountInString(best) >= MinPDFChars {
			return best, nil
		}
	}
	return "", domain.ErrScannedPDF
}

func parsePDF(data []byte) (text string) {
	// the parser panics on some malformed inputs
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(plain, maxInflatedStream))
	if err != nil {
		return ""
	}
	return string(b)
}

// scanShowText collects string operands of Tj, TJ, ' and " operators from
// every content stream, inflating Flate-encoded streams when possible.
func scanShowText(data []byte) string {
	var sb strings.Builder
	for _, m := range pdfStream.FindAllSubmatch(data, -1) {
		content := m[1]
		if inflated, ok := inflate(content); ok {
			content = inflated
		}
		for _, op := range pdfShowText.FindAllSubmatch(content, -1) {
			switch {
			case op[1] != nil:
				sb.WriteString(decodeTJArray(op[1]))
			case op[2] != nil:
				sb.WriteString(decodePDFString(op[2]))
				sb.WriteByte(' ')
			default:
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

func inflate(b []byte) ([]byte, bool) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflatedStream))
	if err != nil && len(out) == 0 {
		return nil, false
	}
	return out, true
}

func decodeTJArray(arr []byte) string {
	var sb strings.Builder
	for _, item := range pdfTJItem.FindAllSubmatch(arr, -1) {
		if item[1] != nil || bytes.HasPrefix(item[0], []byte("(")) {
			sb.WriteString(decodePDFString(item[1]))
			continue
		}
		// large negative kerning is how most producers encode a word gap
		if n, err := strconv.ParseFloat(string(item[2]), 64); err == nil && n <= -200 {
			sb.WriteByte(' ')
		}
	}
	sb.WriteByte(' ')
	return sb.String()
}

func decodePDFString(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' || i+1 >= len(b) {
			if c >= 0x20 && c < 0x7F || c == '\n' || c == '\t' {
				sb.WriteByte(c)
			}
			continue
		}
		i++
		switch e := b[i]; e {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'b', 'f':
		case '(', ')', '\\':
			sb.WriteByte(e)
		default:
			if e >= '0' && e <= '7' {
				j := i
				for j < len(b) && j < i+3 && b[j] >= '0' && b[j] <= '7' {
					j++
				}
				if v, err := strconv.ParseUint(string(b[i:j]), 8, 8); err == nil && v >= 0x20 && v < 0x7F {
					sb.WriteByte(byte(v))
				}
				i = j - 1
			}
		}
	}
	return sb.String()
}

package extract

import (
	"archive/zip"
	"bytes"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/kbpipe/internal/domain"
)

const docxMainPart = "word/document.xml"

var (
	docxTextNode = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>|<w:tab/>|<w:br/>|</w:p>`)
)

// DOCX extracts the text nodes of the main document part. When the package
// cannot be read it falls back to a printable prose scan. Results shorter
// than MinDOCXChars are rejected.
func DOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrEmptyDocument
	}

	text := ""
	if xml, err := docxDocumentXML(data); err == nil {
		text = Normalize(docxText(xml))
	}
	if utf8.RuneCountInString(text) < MinDOCXChars {
		if alt := Normalize(strings.Join(printableProse(data), "\n")); utf8.RuneCountInString(alt) > utf8.RuneCountInString(text) {
			text = alt
		}
	}
	if utf8.RuneCountInString(text) < MinDOCXChars {
		return "", domain.ErrDOCXUnreadable
	}
	return text, nil
}

func docxDocumentXML(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	f, err := zr.Open(docxMainPart)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxInflatedStream))
}

func docxText(xml []byte) string {
	var sb strings.Builder
	for _, m := range docxTextNode.FindAllSubmatch(xml, -1) {
		switch {
		case m[1] != nil:
			sb.WriteString(html.UnescapeString(string(m[1])))
		case bytes.Equal(m[0], []byte("<w:tab/>")):
			sb.WriteByte('\t')
		case bytes.Equal(m[0], []byte("<w:br/>")):
			sb.WriteByte('\n')
		default:
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// Package extract turns raw sources into normalized plain text.
package extract

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/domain"
)

// Kind identifies an extractor variant
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindHTML     Kind = "html"
)

// Minimum accepted text lengths, in characters.
const (
	MinPDFChars  = 100
	MinDOCXChars = 50
	MinHTMLChars = 200
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var (
	excessBlankLines = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
	trailingSpace    = regexp.MustCompile(`[ \t]+\n`)
)

// Normalize converts line endings to LF, collapses three or more newlines
// into two and trims the result.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = excessBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// DetectKind selects an extractor by MIME type, falling back to the file
// extension when the MIME type is missing or generic.
func DetectKind(mimeType, fileName string) (Kind, error) {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		switch mt {
		case "text/plain":
			return KindText, nil
		case "text/markdown", "text/x-markdown":
			return KindMarkdown, nil
		case "application/pdf":
			return KindPDF, nil
		case docxMIME:
			return KindDOCX, nil
		case "text/html", "application/xhtml+xml":
			return KindHTML, nil
		}
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".text":
		return KindText, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".html", ".htm":
		return KindHTML, nil
	}
	return "", domain.ErrUnsupportedFileType
}

// Source returns the provenance tag of items imported through this kind.
func (k Kind) Source() domain.KnowledgeSource {
	switch k {
	case KindMarkdown:
		return domain.KnowledgeSourceImportMD
	case KindPDF:
		return domain.KnowledgeSourceImportPDF
	case KindDOCX:
		return domain.KnowledgeSourceImportDOCX
	case KindHTML:
		return domain.KnowledgeSourceImportURL
	default:
		return domain.KnowledgeSourceImportTXT
	}
}

// Extract returns the normalized text of data. Failures are domain errors
// with code EXTRACTION_FAILED.
func Extract(kind Kind, data []byte) (string, error) {
	switch kind {
	case KindText, KindMarkdown:
		text := Normalize(string(data))
		if text == "" {
			return "", domain.ErrEmptyDocument
		}
		return text, nil
	case KindPDF:
		return PDF(data)
	case KindDOCX:
		return DOCX(data)
	case KindHTML:
		return HTML(string(data))
	}
	return "", domain.ErrUnsupportedFileType
}

var printableRun = regexp.MustCompile(`[\x20-\x7E]{20,}`)

// printableProse returns long printable-ASCII runs that read like text
// rather than file-format syntax.
func printableProse(data []byte) []string {
	var out []string
	for _, run := range printableRun.FindAll(data, -1) {
		s := strings.TrimSpace(string(run))
		if looksLikeProse(s) {
			out = append(out, s)
		}
	}
	return out
}

func looksLikeProse(s string) bool {
	if strings.ContainsAny(s, "<>/\\{}[]=") {
		return false
	}
	if strings.Count(s, " ") < 2 {
		return false
	}
	letters := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == ' ' {
			letters++
		}
	}
	return float64(letters)/float64(len(s)) >= 0.8
}

package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/cloo-solutions/kbpipe/internal/domain"
)

// noiseSelectors are removed before any text is read.
var noiseSelectors = strings.Join([]string{
	"script", "style", "noscript", "template", "svg",
	"nav", "footer", "header", "aside", "iframe", "form",
	`[class*="cookie"]`, `[id*="cookie"]`, `[class*="consent"]`,
	`[class*="advert"]`, `[id*="advert"]`, ".ads", ".ad", "#ads", `[class*="sponsor"]`,
	`[role="navigation"]`, `[role="banner"]`, `[aria-hidden="true"]`,
}, ", ")

// contentSelectors are tried in order; the first whose text is long enough wins.
var contentSelectors = []string{
	"main", "article", `[role="main"]`, ".content", "#content",
	".post", ".entry-content", ".article-body",
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"blockquote": true, "pre": true, "br": true, "hr": true, "dl": true, "dt": true, "dd": true,
}

var inlineSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)

// HTML extracts the readable text of a page. Boilerplate elements are
// stripped and a semantic main-content container is preferred over the body.
// Results shorter than MinHTMLChars are rejected.
func HTML(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeExtractionFailed, "could not parse html", err)
	}

	doc.Find(noiseSelectors).Remove()

	text := ""
	for _, sel := range contentSelectors {
		candidate := cleanText(doc.Find(sel).First())
		if utf8.RuneCountInString(candidate) > MinHTMLChars {
			text = candidate
			break
		}
	}
	if text == "" {
		text = cleanText(doc.Find("body"))
	}

	if utf8.RuneCountInString(text) < MinHTMLChars {
		return "", domain.ErrInsufficientContent
	}
	return text, nil
}

// PageTitle returns the document title, or "" if none is present.
func PageTitle(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func cleanText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	var sb strings.Builder
	for _, n := range sel.Nodes {
		writeText(&sb, n)
	}

	lines := strings.Split(sb.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	return Normalize(strings.Join(lines, "\n"))
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		return
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteString("\n\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if block {
		sb.WriteString("\n\n")
	}
}

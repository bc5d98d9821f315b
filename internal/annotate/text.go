package annotate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	strippedElements = "script, style, nav, footer, header, aside, noscript"
	blockElements    = "p, li, h1, h2, h3, h4, h5, h6, td, th, blockquote, pre, div, br"
)

var horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)

// ExtractText returns the readable text of an HTML fragment or document.
// Block elements end their own line so headings and paragraphs do not run
// into each other.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strippedElements).Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	return NormalizeText(text), nil
}

// NormalizeText collapses runs of horizontal whitespace and drops blank lines.
func NormalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(horizontalSpace.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

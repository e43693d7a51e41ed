package crawlloop

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageFacts is the slice of a fetched page goquery extracts: title and
// meta-description for DecisionTree, out-links for queue expansion.
type pageFacts struct {
	Title       string
	Description string
	Links       []string
}

// scanPage parses body as HTML relative to base and returns its title,
// meta description, and every same-document-reachable absolute link.
// Parse failures yield zero-value facts rather than an error: a page
// DecisionTree/out-link discovery can't use is not a crawl failure.
func scanPage(body []byte, base *url.URL) pageFacts {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageFacts{}
	}

	facts := pageFacts{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: metaDescription(doc),
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved := resolveLink(base, href)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		facts.Links = append(facts.Links, resolved)
	})

	return facts
}

func metaDescription(doc *goquery.Document) string {
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return strings.TrimSpace(desc)
}

func resolveLink(base *url.URL, href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

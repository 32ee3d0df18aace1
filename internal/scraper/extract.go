package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nicheradar/nicheradar/internal/evidence"
)

// pageKind selects the extraction strategy. It is derived from URL shape
// before fetching, because the strategy also decides whether JS rendering is
// worth paying for.
type pageKind int

const (
	pageGeneric pageKind = iota
	pageForum
	pageListing
)

func (k pageKind) renderJS() bool {
	// Forum threads and marketplace listings are JS-heavy; plain pages are
	// cheaper without rendering.
	return k == pageForum || k == pageListing
}

func (k pageKind) evidenceKind() evidence.Kind {
	if k == pageForum {
		return evidence.KindForum
	}
	return evidence.KindGenericPage
}

func classifyURL(raw string) pageKind {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "reddit.com"),
		strings.Contains(lower, "/forum"),
		strings.Contains(lower, "/threads/"),
		strings.Contains(lower, "community."):
		return pageForum
	case strings.Contains(lower, "amazon."),
		strings.Contains(lower, "/dp/"),
		strings.Contains(lower, "/product"):
		return pageListing
	default:
		return pageGeneric
	}
}

func extract(kind pageKind, html []byte) (title, body string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", ""
	}
	switch kind {
	case pageForum:
		return extractForum(doc)
	case pageListing:
		return extractListing(doc)
	default:
		return extractGeneric(doc)
	}
}

// extractForum pulls the thread title, the opening post, and up to 20
// comments. Selector lists cover both old and redesigned reddit-style markup.
func extractForum(doc *goquery.Document) (string, string) {
	title := firstText(doc, "h1", `[data-test-id="post-content-title"]`, ".title")

	var parts []string
	if post := firstText(doc, `[data-test-id="post-content"]`, ".usertext-body", `[data-click-id="text"]`); post != "" {
		parts = append(parts, post)
	}

	for _, sel := range []string{`[data-testid="comment"]`, ".Comment", `[data-type="comment"]`} {
		comments := doc.Find(sel)
		if comments.Length() == 0 {
			continue
		}
		comments.EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= 20 {
				return false
			}
			if text := normalizeText(s.Text()); len(text) > 10 {
				parts = append(parts, "Comment: "+text)
			}
			return true
		})
		break
	}

	return title, strings.Join(parts, "\n\n")
}

// extractListing pulls the product title, feature bullets, description, and
// sampled review bodies from a marketplace listing page.
func extractListing(doc *goquery.Document) (string, string) {
	title := firstText(doc, "#productTitle", "h1")

	var parts []string
	doc.Find("#feature-bullets li, [data-feature-name=\"featurebullets\"] li").Each(func(i int, s *goquery.Selection) {
		if text := normalizeText(s.Text()); text != "" {
			parts = append(parts, fmt.Sprintf("Feature: %s", text))
		}
	})
	if desc := firstText(doc, "#productDescription"); desc != "" {
		parts = append(parts, desc)
	}
	doc.Find(`[data-hook="review-body"], .review-text-content`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 20 {
			return false
		}
		if text := normalizeText(s.Text()); len(text) > 10 {
			parts = append(parts, "Review: "+text)
		}
		return true
	})

	return title, strings.Join(parts, "\n\n")
}

// extractGeneric strips boilerplate and returns the main content text.
func extractGeneric(doc *goquery.Document) (string, string) {
	title := normalizeText(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer, header, aside, iframe").Remove()

	var main *goquery.Selection
	for _, sel := range []string{"main", "article", `[role="main"]`, ".content", "#content"} {
		if found := doc.Find(sel); found.Length() > 0 {
			main = found.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	return title, normalizeText(main.Text())
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			if text := normalizeText(found.First().Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// normalizeText collapses all runs of whitespace to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

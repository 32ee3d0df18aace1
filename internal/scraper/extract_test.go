package scraper

import (
	"strings"
	"testing"
)

func TestClassifyURL(t *testing.T) {
	cases := []struct {
		url  string
		want pageKind
	}{
		{"https://www.reddit.com/r/espresso/comments/abc/best_machine/", pageForum},
		{"https://forums.tomsguide.com/threads/grinder-advice.12345/", pageForum},
		{"https://community.acme.com/t/noise-levels/99", pageForum},
		{"https://www.amazon.com/dp/B0ABCDEF", pageListing},
		{"https://shop.example.com/product/espresso-pro", pageListing},
		{"https://www.theverge.com/reviews/espresso-machines", pageGeneric},
		{"https://blog.example.com/2026/espresso-roundup", pageGeneric},
	}
	for _, tc := range cases {
		if got := classifyURL(tc.url); got != tc.want {
			t.Errorf("classifyURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestPageKindRenderJS(t *testing.T) {
	if !pageForum.renderJS() || !pageListing.renderJS() {
		t.Error("forum and listing pages need rendering")
	}
	if pageGeneric.renderJS() {
		t.Error("generic pages must not pay for rendering")
	}
}

func TestExtractForum(t *testing.T) {
	html := `<html><body>
		<h1>Is the ZetaBrew 900 worth it?</h1>
		<div data-test-id="post-content">I have been using it daily for six months and the boiler is solid.</div>
		<div data-testid="comment">Mine started leaking after a year, check the gasket.</div>
		<div data-testid="comment">ok</div>
		<div data-testid="comment">The grinder pairs well with it if you keep the burrs clean.</div>
	</body></html>`

	title, body := extract(pageForum, []byte(html))

	if title != "Is the ZetaBrew 900 worth it?" {
		t.Errorf("unexpected title %q", title)
	}
	if !strings.Contains(body, "boiler is solid") {
		t.Error("opening post missing from body")
	}
	if got := strings.Count(body, "Comment: "); got != 2 {
		t.Errorf("expected 2 comments above the length floor, got %d", got)
	}
}

func TestExtractListing(t *testing.T) {
	html := `<html><body>
		<span id="productTitle"> ZetaBrew 900 Espresso Machine </span>
		<div id="feature-bullets"><ul><li>15 bar pump</li><li>Stainless boiler</li></ul></div>
		<div id="productDescription">A compact machine for daily use.</div>
		<span data-hook="review-body">Consistent shots every morning, easy to descale.</span>
	</body></html>`

	title, body := extract(pageListing, []byte(html))

	if title != "ZetaBrew 900 Espresso Machine" {
		t.Errorf("unexpected title %q", title)
	}
	for _, want := range []string{"Feature: 15 bar pump", "Feature: Stainless boiler", "A compact machine", "Review: Consistent shots"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestExtractGeneric_StripsBoilerplate(t *testing.T) {
	html := `<html><head><title>Roundup 2026</title></head><body>
		<nav>Home | Reviews | About</nav>
		<script>var tracking = true;</script>
		<article>The ZetaBrew 900 topped our blind taste test.</article>
		<footer>Copyright</footer>
	</body></html>`

	title, body := extract(pageGeneric, []byte(html))

	if title != "Roundup 2026" {
		t.Errorf("unexpected title %q", title)
	}
	if !strings.Contains(body, "blind taste test") {
		t.Error("article text missing")
	}
	for _, junk := range []string{"tracking", "Home |", "Copyright"} {
		if strings.Contains(body, junk) {
			t.Errorf("boilerplate %q leaked into body", junk)
		}
	}
}

func TestExtractGeneric_BodyFallback(t *testing.T) {
	html := `<html><body><p>No main container here, just a paragraph.</p></body></html>`
	_, body := extract(pageGeneric, []byte(html))
	if !strings.Contains(body, "just a paragraph") {
		t.Errorf("expected body fallback, got %q", body)
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("  a\n\tb   c ")
	if got != "a b c" {
		t.Errorf("normalizeText = %q", got)
	}
}

package generate

import (
	"fmt"
	"strings"

	"github.com/nicheradar/nicheradar/internal/evidence"
)

// ReportPrompt assembles the generation prompt from the finalized bundle.
// Advanced reports ask for deeper strategy sections; basic reports ask for a
// compact overview. The evidence section renders every record with its
// provenance so the model can weigh sources.
func ReportPrompt(category, keywords, marketplace string, bundle *evidence.Bundle, advanced bool) string {
	var b strings.Builder

	depth := "a concise market overview with the top findings"
	if advanced {
		depth = "an in-depth market entry analysis with competitive positioning, pricing strategy, and risk assessment"
	}

	fmt.Fprintf(&b, "You are a product research analyst. Write %s for the following niche.\n\n", depth)
	fmt.Fprintf(&b, "Category: %s\nKeywords: %s\nMarketplace: %s\n\n", category, keywords, marketplace)

	b.WriteString("Structure the report in markdown, starting with an '## Executive Summary' section.\n\n")
	b.WriteString("## Research Sources\n\n")
	for i, rec := range bundle.Records {
		fmt.Fprintf(&b, "### Source %d (%s): %s\nURL: %s\n%s\n\n", i+1, rec.Kind, rec.Title, rec.URL, rec.Body)
	}

	if len(bundle.Products) > 0 {
		b.WriteString("## Reference Products\n\n")
		for _, p := range bundle.Products {
			fmt.Fprintf(&b, "- %s (%s): %s, rating %.1f from %d reviews\n", p.ID, p.Price, p.Title, p.Rating, p.ReviewCount)
			for _, f := range p.Features {
				fmt.Fprintf(&b, "  - Feature: %s\n", f)
			}
			for _, r := range p.Reviews {
				fmt.Fprintf(&b, "  - Customer review (%.1f): %s — %s\n", r.Rating, r.Title, r.Excerpt)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Base every claim on the sources above. Where sources conflict, say so.\n")
	return b.String()
}

// SelectionPrompt asks the model to pick the most promising candidate by
// index. Pairs with Client.SelectIndex.
func SelectionPrompt(question string, candidates []string) string {
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nCandidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i, c)
	}
	b.WriteString("\nAnswer with the number of the best candidate and nothing else.\n")
	return b.String()
}

// Package report aggregates a finished research run into a summary for the
// CLI and logs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/internal/storage"
)

// Summary contains aggregated metrics about one research run.
type Summary struct {
	ReportID      string
	Category      string
	Keywords      string
	Marketplace   string
	Model         string
	TotalRecords  int
	RecordsByKind map[evidence.Kind]int
	EvidenceBytes int64
	Products      int
	Duration      time.Duration
	GeneratedAt   time.Time
}

// Build computes the summary for a stored report and its evidence bundle.
// A nil bundle falls back to the counts recorded on the report itself.
func Build(rep *storage.Report, bundle *evidence.Bundle, duration time.Duration) Summary {
	s := Summary{
		ReportID:      rep.ID,
		Category:      rep.Category,
		Keywords:      rep.Keywords,
		Marketplace:   rep.Marketplace,
		Model:         rep.Model,
		RecordsByKind: make(map[evidence.Kind]int),
		Duration:      duration,
		GeneratedAt:   rep.GeneratedAt,
	}

	if bundle == nil {
		s.TotalRecords = rep.SourceCount
		s.Products = rep.ProductCount
		return s
	}

	for _, r := range bundle.Records {
		s.TotalRecords++
		s.RecordsByKind[r.Kind]++
		s.EvidenceBytes += int64(len(r.Body))
	}
	s.Products = len(bundle.Products)

	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable run summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Research Run Summary
--------------------
Report:       {{.ReportID}}
Niche:        {{.Keywords}} ({{.Category}}, {{.Marketplace}})
Model:        {{.Model}}
Generated:    {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
Duration:     {{.Duration}}

Evidence:     {{.TotalRecords}} records, {{.EvidenceBytes}} bytes
{{- range $kind, $count := .RecordsByKind}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}

Products:     {{.Products}}
`

	t, err := template.New("runSummary").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse summary template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	return nil
}

// Package report produces the two read-only projections over a batch: the
// pre-decision distribution of comments by category and severity, and the
// final five-way partition report. Neither projection mutates triage state.
package report

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/prtriage/pkg/orchestrator"
	"github.com/jingkaihe/prtriage/pkg/store"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

// Distribution counts classified comments by (category, severity).
type Distribution struct {
	Counts map[triage.Category]map[triage.Severity]int `json:"counts" yaml:"counts"`
	Total  int                                         `json:"total" yaml:"total"`
}

// Count returns the number of comments in one (category, severity) cell.
func (d *Distribution) Count(cat triage.Category, sev triage.Severity) int {
	return d.Counts[cat][sev]
}

// Distribute builds the pre-decision distribution table.
func Distribute(b *store.Batch) *Distribution {
	d := &Distribution{Counts: make(map[triage.Category]map[triage.Severity]int)}
	for _, c := range b.All() {
		snap := c.Snapshot()
		if snap.Category == "" {
			continue
		}
		if d.Counts[snap.Category] == nil {
			d.Counts[snap.Category] = make(map[triage.Severity]int)
		}
		d.Counts[snap.Category][snap.Severity]++
		d.Total++
	}
	return d
}

// Entry is one comment's line in the final report.
type Entry struct {
	ID                string          `json:"id" yaml:"id"`
	Category          triage.Category `json:"category,omitempty" yaml:"category,omitempty"`
	Severity          triage.Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Summary           string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	PostingIncomplete bool            `json:"posting_incomplete,omitempty" yaml:"posting_incomplete,omitempty"`
}

// Report partitions every comment in the batch into exactly one of five
// buckets. Failures are data here: a failed fix lands in AutoFixFailed and a
// failed terminal post flags the entry as posting-incomplete, neither aborts
// the report.
type Report struct {
	ReviewRef   string    `json:"review_ref,omitempty" yaml:"review_ref,omitempty"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	AutoFixed     []Entry `json:"auto_fixed" yaml:"auto_fixed"`
	AutoFixFailed []Entry `json:"auto_fix_failed" yaml:"auto_fix_failed"`
	WontFix       []Entry `json:"wont_fix" yaml:"wont_fix"`
	Manual        []Entry `json:"manual" yaml:"manual"`
	Unaddressed   []Entry `json:"unaddressed" yaml:"unaddressed"`

	Warnings []orchestrator.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Total returns the number of comments across all partitions.
func (r *Report) Total() int {
	return len(r.AutoFixed) + len(r.AutoFixFailed) + len(r.WontFix) + len(r.Manual) + len(r.Unaddressed)
}

// YAML renders the report as YAML.
func (r *Report) YAML() (string, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Final builds the post-run report. Every comment appears exactly once, in
// batch insertion order within its partition; comments that never received a
// directive or were left unprocessed by cancellation land in Unaddressed.
func Final(reviewRef string, b *store.Batch, result *orchestrator.RunResult) *Report {
	r := &Report{
		ReviewRef:   reviewRef,
		GeneratedAt: time.Now(),
	}
	incomplete := make(map[string]bool)
	if result != nil {
		r.Warnings = result.Warnings
		for _, w := range result.Warnings {
			incomplete[w.CommentID] = true
		}
	}
	for _, c := range b.All() {
		snap := c.Snapshot()
		e := Entry{
			ID:                snap.ID,
			Category:          snap.Category,
			Severity:          snap.Severity,
			PostingIncomplete: incomplete[snap.ID],
		}
		if snap.Outcome != nil {
			e.Summary = snap.Outcome.Summary()
		}
		switch snap.State {
		case triage.StateFixed:
			r.AutoFixed = append(r.AutoFixed, e)
		case triage.StateFixFailed:
			r.AutoFixFailed = append(r.AutoFixFailed, e)
		case triage.StateWontFixPosted:
			r.WontFix = append(r.WontFix, e)
		case triage.StateManualAcknowledged:
			r.Manual = append(r.Manual, e)
		default:
			r.Unaddressed = append(r.Unaddressed, e)
		}
	}
	return r
}

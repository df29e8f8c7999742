// Package presenter renders triage artifacts for the terminal: workflow
// progress messages, the pre-decision distribution table, and the final
// partition report. Rendering is read-only; reports are never mutated here.
package presenter

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/jingkaihe/prtriage/pkg/orchestrator"
	"github.com/jingkaihe/prtriage/pkg/report"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

var (
	headerColor  = color.New(color.Bold, color.FgCyan)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// Presenter writes user-facing output.
type Presenter struct {
	out io.Writer
	err io.Writer
}

// New returns a presenter writing to stdout/stderr.
func New() *Presenter {
	return &Presenter{out: os.Stdout, err: os.Stderr}
}

// NewWithWriters returns a presenter with custom output streams.
func NewWithWriters(out, errOut io.Writer) *Presenter {
	return &Presenter{out: out, err: errOut}
}

// Info prints a plain informational message.
func (p *Presenter) Info(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Success prints a green message.
func (p *Presenter) Success(format string, args ...interface{}) {
	successColor.Fprintf(p.out, format+"\n", args...)
}

// Warning prints a yellow message to the error stream.
func (p *Presenter) Warning(format string, args ...interface{}) {
	warnColor.Fprintf(p.err, format+"\n", args...)
}

// Error prints a red message to the error stream.
func (p *Presenter) Error(err error, context string) {
	errorColor.Fprintf(p.err, "Error: %s: %v\n", context, err)
}

// Section prints a bold section header.
func (p *Presenter) Section(title string) {
	headerColor.Fprintf(p.out, "\n%s\n", title)
	fmt.Fprintln(p.out, "-----------------------------------------------------------")
}

// Distribution renders the pre-decision (category, severity) table.
func (p *Presenter) Distribution(d *report.Distribution) {
	p.Section("Comment distribution")
	fmt.Fprintf(p.out, "%-18s", "")
	for _, sev := range triage.Severities {
		fmt.Fprintf(p.out, "%10s", sev)
	}
	fmt.Fprintln(p.out)
	for _, cat := range triage.Categories {
		row, ok := d.Counts[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(p.out, "%-18s", cat)
		for _, sev := range triage.Severities {
			fmt.Fprintf(p.out, "%10d", row[sev])
		}
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "\nTotal: %d comments\n", d.Total)
}

// Report renders the final partition report.
func (p *Presenter) Report(r *report.Report) {
	p.Section("Triage report")
	p.partition("Auto-fixed", r.AutoFixed, successColor)
	p.partition("Auto-fix failed", r.AutoFixFailed, errorColor)
	p.partition("Won't fix", r.WontFix, warnColor)
	p.partition("Manual follow-up", r.Manual, warnColor)
	p.partition("Unaddressed", r.Unaddressed, nil)

	if len(r.Warnings) > 0 {
		p.Warning("%d status post(s) failed; the platform may be missing terminal updates:", len(r.Warnings))
		for _, w := range r.Warnings {
			p.Warning("  - comment %s (%s): %s", w.CommentID, w.Kind, w.Message)
		}
	}
	fmt.Fprintf(p.out, "\n%d comments in total\n", r.Total())
}

func (p *Presenter) partition(title string, entries []report.Entry, c *color.Color) {
	if len(entries) == 0 {
		return
	}
	if c != nil {
		c.Fprintf(p.out, "\n%s (%d):\n", title, len(entries))
	} else {
		fmt.Fprintf(p.out, "\n%s (%d):\n", title, len(entries))
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %s  [%s/%s]", e.ID, e.Category, e.Severity)
		if e.Summary != "" {
			line += "  " + e.Summary
		}
		if e.PostingIncomplete {
			line += "  (posting incomplete)"
		}
		fmt.Fprintln(p.out, line)
	}
}

// RunSummary prints the orchestration result line.
func (p *Presenter) RunSummary(res *orchestrator.RunResult) {
	if res.Cancelled {
		p.Warning("Run cancelled: %d comments processed before shutdown", res.Processed)
		return
	}
	p.Success("Processed %d comments", res.Processed)
	for _, id := range res.RationaleMissing {
		p.Warning("comment %s skipped: won't-fix directive without rationale", id)
	}
}

// Package classifier assigns a category and severity to each comment using
// deterministic rules over the pre-extracted signal attributes. Rules are
// evaluated in a fixed priority order so that ambiguous comments always take
// the earliest-listed category, which keeps runs reproducible.
package classifier

import (
	"context"

	"github.com/jingkaihe/prtriage/pkg/logger"
	"github.com/jingkaihe/prtriage/pkg/store"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

// Classify derives (category, severity) from a comment's immutable
// attributes. It is a pure function: calling it any number of times on an
// unmodified comment yields the same pair.
func Classify(c *triage.Comment) (triage.Category, triage.Severity) {
	cat := categorize(c)
	return cat, severize(c, cat)
}

// categorize applies the priority-ordered rules; first match wins.
func categorize(c *triage.Comment) triage.Category {
	s := c.Signals
	switch {
	case s.Security:
		return triage.CategorySecurity
	case s.Bug:
		return triage.CategoryBugsAndSmells
	case s.Question && !s.Suggestion:
		return triage.CategoryClarifications
	case s.DocsFile:
		return triage.CategoryDocumentation
	case s.Suggestion:
		return triage.CategoryCodeChanges
	default:
		return triage.CategoryOther
	}
}

// severize starts at Medium and escalates. High requires an inline comment on
// changed lines with a security or bug category; Critical additionally
// requires the platform's explicit merge-blocking flag on a security comment.
func severize(c *triage.Comment, cat triage.Category) triage.Severity {
	sev := triage.SeverityMedium
	if c.Inline() && c.Signals.OnChangedLines &&
		(cat == triage.CategorySecurity || cat == triage.CategoryBugsAndSmells) {
		sev = triage.SeverityHigh
	}
	if cat == triage.CategorySecurity && c.MergeBlocking {
		sev = triage.SeverityCritical
	}
	return sev
}

// Annotate classifies every comment in the batch, moving each from Pending to
// Classified. Comments classified in an earlier pass are re-classified, which
// is idempotent for unmodified comments.
func Annotate(ctx context.Context, b *store.Batch) error {
	log := logger.G(ctx)
	for _, c := range b.All() {
		cat, sev := Classify(c)
		if err := c.SetClassification(cat, sev); err != nil {
			return err
		}
		log.WithField("comment_id", c.ID).
			WithField("category", cat).
			WithField("severity", sev).
			Debug("classified comment")
	}
	return nil
}

// Package store holds the Batch: the normalized, insertion-ordered set of
// comments for one review session. A Batch is exclusively owned by a single
// triage run and is discarded once the final report is emitted.
package store

import (
	"fmt"

	"github.com/jingkaihe/prtriage/pkg/platform"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

// IngestError reports malformed input to Ingest. It is fatal: the run aborts
// before any classification or side effect.
type IngestError struct {
	ID     string
	Reason string
}

func (e *IngestError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("ingest failed for comment %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("ingest failed: %s", e.Reason)
}

// NotFoundError reports a lookup for an id not present in the batch.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("comment %s not found in batch", e.ID)
}

// Batch owns all comments for one review session. Comments are kept in
// insertion order for deterministic reporting.
type Batch struct {
	comments []*triage.Comment
	byID     map[string]*triage.Comment
}

// Ingest normalizes raw comments into a new Batch. Comments missing an id or
// sharing an id with an earlier comment are rejected with an IngestError;
// duplicates are never merged.
func Ingest(raw []platform.RawComment) (*Batch, error) {
	b := &Batch{
		comments: make([]*triage.Comment, 0, len(raw)),
		byID:     make(map[string]*triage.Comment, len(raw)),
	}
	for i, rc := range raw {
		if rc.ID == "" {
			return nil, &IngestError{Reason: fmt.Sprintf("comment at index %d has no id", i)}
		}
		if _, exists := b.byID[rc.ID]; exists {
			return nil, &IngestError{ID: rc.ID, Reason: "duplicate id"}
		}
		c := triage.NewComment(triage.CommentParams{
			ID:            rc.ID,
			Author:        rc.Author,
			CreatedAt:     rc.CreatedAt,
			Body:          rc.Body,
			Location:      rc.Location,
			MergeBlocking: rc.MergeBlocking,
			Signals:       rc.Signals,
		})
		b.comments = append(b.comments, c)
		b.byID[rc.ID] = c
	}
	return b, nil
}

// Get returns the comment with the given id.
func (b *Batch) Get(id string) (*triage.Comment, error) {
	c, ok := b.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return c, nil
}

// All returns the comments in insertion order. The returned slice is a copy;
// the comments themselves are shared.
func (b *Batch) All() []*triage.Comment {
	out := make([]*triage.Comment, len(b.comments))
	copy(out, b.comments)
	return out
}

// Len returns the number of comments in the batch.
func (b *Batch) Len() int {
	return len(b.comments)
}

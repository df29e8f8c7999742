// Package platform defines the contract between the triage core and the code
// hosting platform. The core is transport-agnostic: it consumes RawComments
// and emits status posts through the Gateway interface, and concrete
// adapters (see pkg/platform/github) own the wire details.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jingkaihe/prtriage/pkg/triage"
)

// RawComment is one reviewer comment as retrieved from the platform, before
// ingestion. Signals are pre-extracted by the adapter; the core never parses
// comment text.
type RawComment struct {
	ID            string
	Author        string
	CreatedAt     time.Time
	Body          string
	Location      *triage.Location
	MergeBlocking bool
	Signals       triage.Signals
}

// StatusKind identifies the purpose of a status post.
type StatusKind string

const (
	StatusAcknowledgement  StatusKind = "acknowledgement"
	StatusCompletion       StatusKind = "completion"
	StatusFailure          StatusKind = "failure"
	StatusWontFixRationale StatusKind = "wont-fix-rationale"
)

// Gateway is the platform collaborator the triage workflow talks to.
//
// FetchComments failures abort the whole run. PostStatus failures are
// best-effort for acknowledgements and recorded as PostingIncomplete
// warnings for terminal statuses; they never abort a sibling comment's
// processing.
type Gateway interface {
	FetchComments(ctx context.Context, reviewRef string) ([]RawComment, error)
	PostStatus(ctx context.Context, commentID string, kind StatusKind, message string) error
}

// FetchError wraps a comment retrieval failure. It is propagated to the
// caller of the workflow and never recovered internally.
type FetchError struct {
	ReviewRef string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch comments for %s: %v", e.ReviewRef, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

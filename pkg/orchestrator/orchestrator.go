// Package orchestrator drives remediation for every directive-set comment in
// a batch. Comments are processed by a bounded worker pool; within one
// comment the state transitions and status posts are strictly ordered, and
// across comments no ordering is guaranteed. A cancelled run never leaves a
// comment in progress.
package orchestrator

import (
	"context"
	"sync"

	"github.com/jingkaihe/prtriage/pkg/logger"
	"github.com/jingkaihe/prtriage/pkg/platform"
	"github.com/jingkaihe/prtriage/pkg/store"
	"github.com/jingkaihe/prtriage/pkg/triage"
	"github.com/pkg/errors"
)

const defaultWorkers = 4

// ReasonCancelled is the failure reason recorded for attempts interrupted by
// run cancellation.
const ReasonCancelled = "cancelled"

// Fixer is the remediation capability supplied by the caller. The
// orchestrator treats it as opaque: a returned change reference means
// success, an error means failure. One attempt per comment, never retried.
type Fixer interface {
	AttemptFix(ctx context.Context, c *triage.Comment) (string, error)
}

// FixerFunc adapts a function to the Fixer interface.
type FixerFunc func(ctx context.Context, c *triage.Comment) (string, error)

func (f FixerFunc) AttemptFix(ctx context.Context, c *triage.Comment) (string, error) {
	return f(ctx, c)
}

// Warning records a terminal status post that failed. The comment's
// in-memory state still transitioned; the final report surfaces the id as
// posting-incomplete.
type Warning struct {
	CommentID string              `json:"comment_id" yaml:"comment_id"`
	Kind      platform.StatusKind `json:"kind" yaml:"kind"`
	Message   string              `json:"message" yaml:"message"`
}

// RunResult summarizes one orchestration run.
type RunResult struct {
	Processed int
	Cancelled bool
	Warnings  []Warning
	// RationaleMissing lists won't-fix comments skipped because no rationale
	// was attached. They stay directive-set and are reported as unaddressed.
	RationaleMissing []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the number of concurrent remediation attempts.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Orchestrator executes directives against a batch.
type Orchestrator struct {
	gateway platform.Gateway
	fixer   Fixer
	workers int
}

// New builds an orchestrator around a gateway and a fixer capability.
func New(gateway platform.Gateway, fixer Fixer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway: gateway,
		fixer:   fixer,
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every directive-set comment in the batch. Per-comment
// failures are contained to that comment; Run only returns an error for
// invariant violations that indicate a programming bug. On cancellation,
// in-flight attempts finish as FixFailed with reason "cancelled", queued
// comments stay directive-set, and the result is marked Cancelled.
func (o *Orchestrator) Run(ctx context.Context, b *store.Batch) (*RunResult, error) {
	log := logger.G(ctx)

	var work []*triage.Comment
	for _, c := range b.All() {
		if c.State() == triage.StateDirectiveSet && c.Directive() != triage.DirectiveUnset {
			work = append(work, c)
		}
	}

	result := &RunResult{}
	if len(work) == 0 {
		return result, nil
	}

	workers := o.workers
	if workers > len(work) {
		workers = len(work)
	}

	var mu sync.Mutex
	jobs := make(chan *triage.Comment)
	wg := sync.WaitGroup{}
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for c := range jobs {
				warnings, processed := o.process(ctx, c)
				mu.Lock()
				if processed {
					result.Processed++
				} else if c.Directive() == triage.DirectiveWontFix && c.Rationale() == "" {
					result.RationaleMissing = append(result.RationaleMissing, c.ID)
				}
				result.Warnings = append(result.Warnings, warnings...)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, c := range work {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- c:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		result.Cancelled = true
	}

	// A comment left in progress after the pool drained would violate the
	// lifecycle contract; close it out and flag the bug.
	for _, c := range work {
		if c.State() == triage.StateInProgress {
			log.WithField("comment_id", c.ID).Error("comment still in progress after run, forcing failure")
			if err := c.Complete(triage.StateFixFailed, triage.Outcome{Reason: ReasonCancelled}); err != nil {
				return nil, errors.Wrap(err, "failed to close out in-progress comment")
			}
		}
	}

	return result, nil
}

// process handles a single comment and returns any posting warnings plus
// whether the comment reached a terminal state.
func (o *Orchestrator) process(ctx context.Context, c *triage.Comment) ([]Warning, bool) {
	switch c.Directive() {
	case triage.DirectiveAutoFix:
		return o.autoFix(ctx, c)
	case triage.DirectiveWontFix:
		return o.wontFix(ctx, c)
	case triage.DirectiveManual:
		return o.manual(ctx, c)
	default:
		return nil, false
	}
}

// autoFix runs the attempt pipeline: acquire, acknowledge, fix, complete,
// post terminal status. All posts for the comment happen in that order.
func (o *Orchestrator) autoFix(ctx context.Context, c *triage.Comment) ([]Warning, bool) {
	log := logger.G(ctx).WithField("comment_id", c.ID)

	started, err := c.BeginAttempt()
	if err != nil {
		if errors.Is(err, triage.ErrAlreadyInProgress) {
			log.WithError(err).Error("invariant violation: concurrent attempt on one comment")
		} else {
			log.WithError(err).Error("failed to begin remediation attempt")
		}
		return nil, false
	}
	if !started {
		// Already terminal; re-processing is a no-op.
		return nil, false
	}

	if err := o.gateway.PostStatus(ctx, c.ID, platform.StatusAcknowledgement, "remediation attempt started"); err != nil {
		log.WithError(err).Warn("failed to post acknowledgement, continuing")
	}

	var warnings []Warning
	ref, fixErr := o.fixer.AttemptFix(ctx, c)
	if fixErr != nil {
		reason := fixErr.Error()
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		if err := c.Complete(triage.StateFixFailed, triage.Outcome{Reason: reason}); err != nil {
			log.WithError(err).Error("failed to record fix failure")
			return warnings, false
		}
		log.WithField("reason", reason).Info("remediation attempt failed")
		if err := o.gateway.PostStatus(ctx, c.ID, platform.StatusFailure, "remediation failed: "+reason); err != nil {
			warnings = append(warnings, Warning{CommentID: c.ID, Kind: platform.StatusFailure, Message: err.Error()})
		}
		return warnings, true
	}

	if err := c.Complete(triage.StateFixed, triage.Outcome{ChangeRef: ref}); err != nil {
		log.WithError(err).Error("failed to record fix success")
		return warnings, false
	}
	log.WithField("change_ref", ref).Info("remediation attempt succeeded")
	if err := o.gateway.PostStatus(ctx, c.ID, platform.StatusCompletion, "fixed in "+ref); err != nil {
		warnings = append(warnings, Warning{CommentID: c.ID, Kind: platform.StatusCompletion, Message: err.Error()})
	}
	return warnings, true
}

// wontFix posts the mandatory rationale and closes the comment. The resolver
// rejects rationale-less rules up front, so an empty rationale here is a
// defensive check: the comment stays directive-set and the run continues.
func (o *Orchestrator) wontFix(ctx context.Context, c *triage.Comment) ([]Warning, bool) {
	log := logger.G(ctx).WithField("comment_id", c.ID)

	rationale := c.Rationale()
	if rationale == "" {
		log.Error("won't-fix directive has no rationale, leaving comment unprocessed")
		return nil, false
	}

	if err := c.Resolve(triage.StateWontFixPosted, triage.Outcome{Rationale: rationale}); err != nil {
		log.WithError(err).Error("failed to record won't-fix")
		return nil, false
	}
	if err := o.gateway.PostStatus(ctx, c.ID, platform.StatusWontFixRationale, rationale); err != nil {
		return []Warning{{CommentID: c.ID, Kind: platform.StatusWontFixRationale, Message: err.Error()}}, true
	}
	return nil, true
}

// manual acknowledges the comment for human follow-up. No side effect is
// required.
func (o *Orchestrator) manual(ctx context.Context, c *triage.Comment) ([]Warning, bool) {
	log := logger.G(ctx).WithField("comment_id", c.ID)
	if err := c.Resolve(triage.StateManualAcknowledged, triage.Outcome{Note: "routed to manual follow-up"}); err != nil {
		log.WithError(err).Error("failed to record manual acknowledgement")
		return nil, false
	}
	return nil, true
}

// Package triage defines the core domain model for review comment triage:
// categories, severities, operator directives, and the per-comment lifecycle
// state machine. Every mutable field on a Comment is updated under a
// per-comment lock so that concurrent remediation workers can never observe
// or produce a torn state.
package triage

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Category is the triage classification assigned to a comment.
type Category string

const (
	CategorySecurity       Category = "security"
	CategoryCodeChanges    Category = "code-changes"
	CategoryDocumentation  Category = "documentation"
	CategoryClarifications Category = "clarifications"
	CategoryBugsAndSmells  Category = "bugs-and-smells"
	CategoryOther          Category = "other"
)

// Categories lists all known categories in classifier priority order.
var Categories = []Category{
	CategorySecurity,
	CategoryBugsAndSmells,
	CategoryClarifications,
	CategoryDocumentation,
	CategoryCodeChanges,
	CategoryOther,
}

// Severity is the triage severity assigned alongside the category.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityInfo     Severity = "info"
)

// Severities lists all known severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityInfo}

// Directive is the disposition the operator chose for a comment.
type Directive string

const (
	DirectiveUnset   Directive = "unset"
	DirectiveAutoFix Directive = "auto-fix"
	DirectiveWontFix Directive = "wont-fix"
	DirectiveManual  Directive = "manual"
)

// State is a comment's position in the triage lifecycle.
type State string

const (
	StatePending            State = "pending"
	StateClassified         State = "classified"
	StateDirectiveSet       State = "directive-set"
	StateInProgress         State = "in-progress"
	StateFixed              State = "fixed"
	StateFixFailed          State = "fix-failed"
	StateWontFixPosted      State = "wont-fix-posted"
	StateManualAcknowledged State = "manual-acknowledged"
)

// Terminal reports whether the state is an end state of the lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateFixed, StateFixFailed, StateWontFixPosted, StateManualAcknowledged:
		return true
	}
	return false
}

// transitions is the full set of legal lifecycle edges. Anything not listed
// here is rejected; terminal states have no outgoing edges.
var transitions = map[State][]State{
	StatePending:      {StateClassified},
	StateClassified:   {StateClassified, StateDirectiveSet},
	StateDirectiveSet: {StateDirectiveSet, StateInProgress, StateWontFixPosted, StateManualAcknowledged},
	StateInProgress:   {StateFixed, StateFixFailed},
}

var (
	// ErrAlreadyInProgress signals the at-most-one-attempt guard tripped.
	// Under correct orchestration this never surfaces; it is logged as an
	// invariant violation rather than shown to the operator.
	ErrAlreadyInProgress = errors.New("remediation attempt already in progress")
)

// InvalidTransitionError reports an attempted lifecycle edge that is not in
// the transition table.
type InvalidTransitionError struct {
	ID   string
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid transition for comment " + e.ID + ": " + string(e.From) + " -> " + string(e.To)
}

// Location identifies the file position of an inline comment. General
// comments carry no location.
type Location struct {
	Path string `json:"path" yaml:"path"`
	Line int    `json:"line" yaml:"line"`
}

// Signals are the pre-extracted structured attributes the classifier rules
// run over. Extracting them from raw comment text is the platform adapter's
// job; the core never inspects free text.
type Signals struct {
	Security       bool `json:"security" yaml:"security"`
	Bug            bool `json:"bug" yaml:"bug"`
	Question       bool `json:"question" yaml:"question"`
	Suggestion     bool `json:"suggestion" yaml:"suggestion"`
	DocsFile       bool `json:"docs_file" yaml:"docs_file"`
	OnChangedLines bool `json:"on_changed_lines" yaml:"on_changed_lines"`
}

// Outcome records the result of a terminal transition. Exactly one of
// ChangeRef, Reason, Rationale, or Note is meaningful depending on the
// terminal state reached.
type Outcome struct {
	ChangeRef string `json:"change_ref,omitempty" yaml:"change_ref,omitempty"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Note      string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Summary renders the populated outcome field for reporting.
func (o Outcome) Summary() string {
	switch {
	case o.ChangeRef != "":
		return o.ChangeRef
	case o.Reason != "":
		return o.Reason
	case o.Rationale != "":
		return o.Rationale
	default:
		return o.Note
	}
}

// CommentParams carries the immutable attributes of a newly ingested comment.
type CommentParams struct {
	ID            string
	Author        string
	CreatedAt     time.Time
	Body          string
	Location      *Location
	MergeBlocking bool
	Signals       Signals
}

// Comment is one unit of reviewer feedback under triage. The identity and
// signal fields are immutable after construction; state, classification,
// directive, and outcome are guarded by the per-comment mutex.
type Comment struct {
	ID            string
	Author        string
	CreatedAt     time.Time
	Body          string
	Location      *Location
	MergeBlocking bool
	Signals       Signals

	mu        sync.Mutex
	state     State
	category  Category
	severity  Severity
	directive Directive
	rationale string
	outcome   *Outcome
}

// NewComment builds a comment in the Pending state.
func NewComment(p CommentParams) *Comment {
	return &Comment{
		ID:            p.ID,
		Author:        p.Author,
		CreatedAt:     p.CreatedAt,
		Body:          p.Body,
		Location:      p.Location,
		MergeBlocking: p.MergeBlocking,
		Signals:       p.Signals,
		state:         StatePending,
		directive:     DirectiveUnset,
	}
}

// Inline reports whether the comment carries a file location.
func (c *Comment) Inline() bool {
	return c.Location != nil
}

// State returns the current lifecycle state.
func (c *Comment) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Category returns the assigned category, or the zero value before
// classification.
func (c *Comment) Category() Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category
}

// Severity returns the assigned severity, or the zero value before
// classification.
func (c *Comment) Severity() Severity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.severity
}

// Directive returns the operator directive attached to the comment.
func (c *Comment) Directive() Directive {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directive
}

// Rationale returns the rationale attached with a won't-fix directive.
func (c *Comment) Rationale() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rationale
}

// Outcome returns a copy of the terminal outcome, or nil when the comment has
// not reached a terminal state.
func (c *Comment) Outcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return nil
	}
	out := *c.outcome
	return &out
}

// transitionLocked validates and applies a lifecycle edge. Callers hold c.mu.
func (c *Comment) transitionLocked(to State) error {
	for _, next := range transitions[c.state] {
		if next == to {
			c.state = to
			return nil
		}
	}
	return &InvalidTransitionError{ID: c.ID, From: c.state, To: to}
}

// SetClassification assigns category and severity, moving a Pending comment
// to Classified. Re-classifying an already-classified comment is allowed and
// idempotent; classification is rejected once a directive is attached.
func (c *Comment) SetClassification(cat Category, sev Severity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateClassified); err != nil {
		return err
	}
	c.category = cat
	c.severity = sev
	return nil
}

// SetDirective attaches an operator directive, moving the comment to
// DirectiveSet. The directive may be replaced until remediation begins;
// after that the lifecycle has left DirectiveSet and the edge is rejected.
func (c *Comment) SetDirective(d Directive, rationale string) error {
	if d == DirectiveUnset {
		return errors.Errorf("cannot set directive %q on comment %s", d, c.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateDirectiveSet); err != nil {
		return err
	}
	c.directive = d
	c.rationale = rationale
	return nil
}

// BeginAttempt acquires the comment for an auto-fix attempt, moving it to
// InProgress. It returns (false, nil) for a comment already in a terminal
// state, making re-processing a no-op, and ErrAlreadyInProgress when another
// attempt holds the comment.
func (c *Comment) BeginAttempt() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return false, nil
	}
	if c.state == StateInProgress {
		return false, ErrAlreadyInProgress
	}
	if c.directive != DirectiveAutoFix {
		return false, errors.Errorf("comment %s has directive %q, not %q", c.ID, c.directive, DirectiveAutoFix)
	}
	if err := c.transitionLocked(StateInProgress); err != nil {
		return false, err
	}
	return true, nil
}

// Complete finishes an in-progress attempt with Fixed or FixFailed, recording
// the outcome in the same critical section as the state change.
func (c *Comment) Complete(to State, out Outcome) error {
	if to != StateFixed && to != StateFixFailed {
		return errors.Errorf("complete: %q is not an auto-fix terminal state", to)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return nil
	}
	if err := c.transitionLocked(to); err != nil {
		return err
	}
	c.outcome = &out
	return nil
}

// Resolve finishes a non-automated directive with WontFixPosted or
// ManualAcknowledged.
func (c *Comment) Resolve(to State, out Outcome) error {
	if to != StateWontFixPosted && to != StateManualAcknowledged {
		return errors.Errorf("resolve: %q is not a non-automated terminal state", to)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return nil
	}
	if err := c.transitionLocked(to); err != nil {
		return err
	}
	c.outcome = &out
	return nil
}

// Snapshot is an immutable point-in-time view of a comment, safe to read
// without holding the comment lock.
type Snapshot struct {
	ID        string     `json:"id" yaml:"id"`
	Author    string     `json:"author,omitempty" yaml:"author,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Body      string     `json:"body,omitempty" yaml:"body,omitempty"`
	Location  *Location  `json:"location,omitempty" yaml:"location,omitempty"`
	State     State      `json:"state" yaml:"state"`
	Category  Category   `json:"category,omitempty" yaml:"category,omitempty"`
	Severity  Severity   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Directive Directive  `json:"directive" yaml:"directive"`
	Outcome   *Outcome   `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// Snapshot captures the comment's current state under the lock.
func (c *Comment) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		ID:        c.ID,
		Author:    c.Author,
		CreatedAt: c.CreatedAt,
		Body:      c.Body,
		Location:  c.Location,
		State:     c.state,
		Category:  c.category,
		Severity:  c.severity,
		Directive: c.directive,
	}
	if c.outcome != nil {
		out := *c.outcome
		snap.Outcome = &out
	}
	return snap
}

package triage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComment(id string) *Comment {
	return NewComment(CommentParams{
		ID:        id,
		Author:    "reviewer",
		CreatedAt: time.Now(),
		Body:      "please fix this",
	})
}

func TestNewCommentStartsPending(t *testing.T) {
	c := newTestComment("c1")
	assert.Equal(t, StatePending, c.State())
	assert.Equal(t, DirectiveUnset, c.Directive())
	assert.Nil(t, c.Outcome())
}

func TestLifecycleHappyPath(t *testing.T) {
	c := newTestComment("c1")

	require.NoError(t, c.SetClassification(CategorySecurity, SeverityHigh))
	assert.Equal(t, StateClassified, c.State())
	assert.Equal(t, CategorySecurity, c.Category())
	assert.Equal(t, SeverityHigh, c.Severity())

	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))
	assert.Equal(t, StateDirectiveSet, c.State())

	started, err := c.BeginAttempt()
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, StateInProgress, c.State())

	require.NoError(t, c.Complete(StateFixed, Outcome{ChangeRef: "abc123"}))
	assert.Equal(t, StateFixed, c.State())
	require.NotNil(t, c.Outcome())
	assert.Equal(t, "abc123", c.Outcome().ChangeRef)
}

func TestNoTransitionSkipsStates(t *testing.T) {
	c := newTestComment("c1")

	// Directive before classification
	err := c.SetDirective(DirectiveAutoFix, "")
	require.Error(t, err)
	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)

	// Attempt before directive
	started, err := c.BeginAttempt()
	assert.False(t, started)
	assert.Error(t, err)

	// Completion before attempt
	require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
	err = c.Complete(StateFixed, Outcome{ChangeRef: "abc"})
	assert.Error(t, err)
}

func TestReclassificationIsAllowedUntilDirectiveSet(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
	require.NoError(t, c.SetClassification(CategoryBugsAndSmells, SeverityHigh))
	assert.Equal(t, CategoryBugsAndSmells, c.Category())

	require.NoError(t, c.SetDirective(DirectiveManual, ""))
	require.NoError(t, c.Resolve(StateManualAcknowledged, Outcome{Note: "handled"}))
	assert.Error(t, c.SetClassification(CategoryOther, SeverityInfo))
}

func TestDirectiveReplaceableBeforeRemediation(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
	require.NoError(t, c.SetDirective(DirectiveWontFix, "out of scope"))
	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))
	assert.Equal(t, DirectiveAutoFix, c.Directive())

	started, err := c.BeginAttempt()
	require.NoError(t, err)
	require.True(t, started)
	assert.Error(t, c.SetDirective(DirectiveManual, ""))
}

func TestBeginAttemptGuard(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategorySecurity, SeverityCritical))
	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))

	started, err := c.BeginAttempt()
	require.NoError(t, err)
	require.True(t, started)

	// Second acquisition trips the at-most-one-attempt guard.
	started, err = c.BeginAttempt()
	assert.False(t, started)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
}

func TestBeginAttemptConcurrent(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategorySecurity, SeverityCritical))
	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))

	const goroutines = 32
	var wg sync.WaitGroup
	acquired := make(chan struct{}, goroutines)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if started, err := c.BeginAttempt(); err == nil && started {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	assert.Equal(t, 1, count, "exactly one goroutine must acquire the attempt")
	assert.Equal(t, StateInProgress, c.State())
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))
	_, err := c.BeginAttempt()
	require.NoError(t, err)
	require.NoError(t, c.Complete(StateFixFailed, Outcome{Reason: "tool crashed"}))

	// Re-processing a terminal comment is a no-op, not an error.
	started, err := c.BeginAttempt()
	require.NoError(t, err)
	assert.False(t, started)
	require.NoError(t, c.Complete(StateFixed, Outcome{ChangeRef: "zzz"}))
	assert.Equal(t, StateFixFailed, c.State())
	assert.Equal(t, "tool crashed", c.Outcome().Reason)
}

func TestOutcomeSetIffTerminal(t *testing.T) {
	c := newTestComment("c1")
	assert.Nil(t, c.Outcome())
	require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
	assert.Nil(t, c.Outcome())
	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))
	assert.Nil(t, c.Outcome())
	_, err := c.BeginAttempt()
	require.NoError(t, err)
	assert.Nil(t, c.Outcome())
	require.NoError(t, c.Complete(StateFixed, Outcome{ChangeRef: "ref"}))
	assert.True(t, c.State().Terminal())
	assert.NotNil(t, c.Outcome())
}

func TestResolveNonAutomatedTerminals(t *testing.T) {
	tests := []struct {
		name      string
		directive Directive
		rationale string
		to        State
	}{
		{name: "wont fix", directive: DirectiveWontFix, rationale: "by design", to: StateWontFixPosted},
		{name: "manual", directive: DirectiveManual, to: StateManualAcknowledged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComment("c1")
			require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
			require.NoError(t, c.SetDirective(tt.directive, tt.rationale))
			require.NoError(t, c.Resolve(tt.to, Outcome{Rationale: tt.rationale}))
			assert.Equal(t, tt.to, c.State())
			assert.NotNil(t, c.Outcome())
		})
	}
}

func TestResolveRejectsAutoFixTerminals(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategoryOther, SeverityMedium))
	require.NoError(t, c.SetDirective(DirectiveWontFix, "nope"))
	assert.Error(t, c.Resolve(StateFixed, Outcome{}))
	assert.Error(t, c.Complete(StateWontFixPosted, Outcome{}))
}

func TestOutcomeSummary(t *testing.T) {
	assert.Equal(t, "abc", Outcome{ChangeRef: "abc"}.Summary())
	assert.Equal(t, "broke", Outcome{Reason: "broke"}.Summary())
	assert.Equal(t, "wai", Outcome{Rationale: "wai"}.Summary())
	assert.Equal(t, "note", Outcome{Note: "note"}.Summary())
}

func TestSnapshotDecoupledFromComment(t *testing.T) {
	c := newTestComment("c1")
	require.NoError(t, c.SetClassification(CategorySecurity, SeverityHigh))
	snap := c.Snapshot()
	require.NoError(t, c.SetDirective(DirectiveAutoFix, ""))
	assert.Equal(t, StateClassified, snap.State)
	assert.Equal(t, DirectiveUnset, snap.Directive)
}

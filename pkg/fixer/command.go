// Package fixer provides remediation action implementations. The
// orchestrator treats a Fixer as an opaque capability; the implementations
// here decide how a fix actually happens.
package fixer

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/prtriage/pkg/logger"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

const defaultTimeout = 10 * time.Minute

// CommandFixer delegates remediation to an external command, typically a
// coding agent invocation. The comment snapshot is written to the command's
// stdin as JSON; a zero exit status means success and the trimmed stdout is
// taken as the change reference (for example a commit SHA).
type CommandFixer struct {
	command string
	args    []string
	timeout time.Duration
}

// CommandOption configures a CommandFixer.
type CommandOption func(*CommandFixer)

// WithTimeout bounds a single fix attempt.
func WithTimeout(d time.Duration) CommandOption {
	return func(f *CommandFixer) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewCommandFixer builds a fixer that runs the given command per comment.
func NewCommandFixer(command string, args []string, opts ...CommandOption) *CommandFixer {
	f := &CommandFixer{
		command: command,
		args:    args,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AttemptFix runs the configured command once for the comment. It is never
// retried: a failure surfaces in the final report for a human to act on.
func (f *CommandFixer) AttemptFix(ctx context.Context, c *triage.Comment) (string, error) {
	log := logger.G(ctx).WithField("comment_id", c.ID)

	input, err := json.Marshal(c.Snapshot())
	if err != nil {
		return "", errors.Wrap(err, "failed to encode comment for fix command")
	}

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.command, f.args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("command", f.command).Debug("running fix command")
	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", errors.Wrap(runCtx.Err(), "fix command interrupted")
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.Errorf("fix command failed: %s", msg)
	}

	ref := strings.TrimSpace(stdout.String())
	if ref == "" {
		return "", errors.New("fix command produced no change reference")
	}
	return ref, nil
}

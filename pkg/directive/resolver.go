// Package directive turns operator selection rules into per-comment
// directives. Resolution is atomic: the full assignment is computed and
// validated first, and either every assignment commits or none does, so a
// failed call leaves the batch exactly as it was for re-resolution.
package directive

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/prtriage/pkg/store"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

// Selection picks comments along one or more axes. A comment matches when it
// is named by ID, or its category or severity is listed. An empty selection
// matches nothing.
type Selection struct {
	IDs        []string          `yaml:"ids,omitempty"`
	Categories []triage.Category `yaml:"categories,omitempty"`
	Severities []triage.Severity `yaml:"severities,omitempty"`
}

// Matches reports whether the selection targets the given comment.
func (s Selection) Matches(c *triage.Comment) bool {
	for _, id := range s.IDs {
		if id == c.ID {
			return true
		}
	}
	cat := c.Category()
	for _, want := range s.Categories {
		if want == cat {
			return true
		}
	}
	sev := c.Severity()
	for _, want := range s.Severities {
		if want == sev {
			return true
		}
	}
	return false
}

// Rule pairs a selection with the directive to apply. WontFix rules must
// carry a rationale; silent won't-fix is disallowed.
type Rule struct {
	Select    Selection        `yaml:"select"`
	Directive triage.Directive `yaml:"directive"`
	Rationale string           `yaml:"rationale,omitempty"`
}

// AmbiguousSelectionError reports comments targeted by two rules with
// conflicting directives within one resolution call. It is a hard error
// requiring operator disambiguation; last-applied-wins is never used.
type AmbiguousSelectionError struct {
	// Conflicts maps comment id to the distinct directives that targeted it.
	Conflicts map[string][]triage.Directive
}

func (e *AmbiguousSelectionError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for id := range e.Conflicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		ds := make([]string, 0, len(e.Conflicts[id]))
		for _, d := range e.Conflicts[id] {
			ds = append(ds, string(d))
		}
		parts = append(parts, fmt.Sprintf("%s: %s", id, strings.Join(ds, " vs ")))
	}
	return "ambiguous selection, conflicting directives for " + strings.Join(parts, "; ")
}

// MissingRationaleError reports a won't-fix rule with no rationale.
type MissingRationaleError struct {
	RuleIndex int
}

func (e *MissingRationaleError) Error() string {
	return fmt.Sprintf("won't-fix rule at index %d has no rationale", e.RuleIndex)
}

// Result summarizes a committed resolution call.
type Result struct {
	// Assigned lists ids that received a directive, in batch order.
	Assigned []string
	// Skipped lists matching ids left untouched because a directive was
	// already attached by an earlier call.
	Skipped []string
}

// assignment is a validated pending directive for one comment.
type assignment struct {
	directive triage.Directive
	rationale string
}

// Resolve applies the rules to every classified comment without a directive.
// Comments matched by no rule keep directive unset and are later reported as
// unaddressed. Validation failures (unknown directive, missing rationale,
// conflicting rules) abort the call before any directive commits.
func Resolve(b *store.Batch, rules []Rule) (*Result, error) {
	var verr *multierror.Error
	for i, r := range rules {
		switch r.Directive {
		case triage.DirectiveAutoFix, triage.DirectiveManual:
		case triage.DirectiveWontFix:
			if strings.TrimSpace(r.Rationale) == "" {
				verr = multierror.Append(verr, &MissingRationaleError{RuleIndex: i})
			}
		default:
			verr = multierror.Append(verr, errors.Errorf("rule at index %d has unknown directive %q", i, r.Directive))
		}
	}
	if err := verr.ErrorOrNil(); err != nil {
		return nil, err
	}

	pending := make(map[string]assignment)
	conflicts := make(map[string][]triage.Directive)
	result := &Result{}

	for _, c := range b.All() {
		if c.State() == triage.StatePending {
			continue
		}
		if c.Directive() != triage.DirectiveUnset {
			for _, r := range rules {
				if r.Select.Matches(c) {
					result.Skipped = append(result.Skipped, c.ID)
					break
				}
			}
			continue
		}
		for _, r := range rules {
			if !r.Select.Matches(c) {
				continue
			}
			prev, ok := pending[c.ID]
			if ok && prev.directive != r.Directive {
				if len(conflicts[c.ID]) == 0 {
					conflicts[c.ID] = append(conflicts[c.ID], prev.directive)
				}
				conflicts[c.ID] = append(conflicts[c.ID], r.Directive)
				continue
			}
			pending[c.ID] = assignment{directive: r.Directive, rationale: r.Rationale}
		}
	}

	if len(conflicts) > 0 {
		return nil, &AmbiguousSelectionError{Conflicts: conflicts}
	}

	for _, c := range b.All() {
		a, ok := pending[c.ID]
		if !ok {
			continue
		}
		if err := c.SetDirective(a.directive, a.rationale); err != nil {
			return nil, errors.Wrapf(err, "failed to set directive on comment %s", c.ID)
		}
		result.Assigned = append(result.Assigned, c.ID)
	}
	return result, nil
}

// LoadRules reads directive rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read directives file")
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse directives file")
	}
	if len(doc.Rules) == 0 {
		return nil, errors.New("directives file contains no rules")
	}
	return doc.Rules, nil
}

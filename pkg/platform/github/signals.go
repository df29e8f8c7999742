package github

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jingkaihe/prtriage/pkg/triage"
)

// Signal extraction is deliberately outside the triage core: the classifier
// only sees the structured Signals produced here, so this heuristic can be
// swapped for a smarter extractor without touching classification rules.

var (
	securityRe = regexp.MustCompile(`(?i)\b(vulnerabilit(y|ies)|security|cve-\d{4}|injection|xss|csrf|rce|credential|secret|api[ _-]?key|password|token leak|hardcoded)\b`)
	bugRe      = regexp.MustCompile(`(?i)\b(bug|race condition|data race|deadlock|memory leak|nil pointer|null pointer|panic|off[ -]by[ -]one|overflow|anti[ -]?pattern|code smell)\b`)
	questionRe = regexp.MustCompile(`(?i)^\s*(why|what|how|when|where|is|are|does|do|can|could|should|would|will)\b|\?\s*$`)
)

var docExtensions = map[string]bool{
	".md":   true,
	".rst":  true,
	".txt":  true,
	".adoc": true,
}

// isDocsPath reports whether the path points at a non-code file.
func isDocsPath(path string) bool {
	if path == "" {
		return false
	}
	base := strings.ToUpper(filepath.Base(path))
	if strings.HasPrefix(base, "README") || strings.HasPrefix(base, "CHANGELOG") || strings.HasPrefix(base, "LICENSE") {
		return true
	}
	if docExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	for _, dir := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if strings.EqualFold(dir, "docs") || strings.EqualFold(dir, "doc") {
			return true
		}
	}
	return false
}

// hasSuggestion reports whether the comment carries a GitHub suggestion
// block, i.e. a concrete proposed code change.
func hasSuggestion(body string) bool {
	return strings.Contains(body, "```suggestion")
}

// ExtractSignals derives the structured classifier inputs from a comment's
// text and location. onChangedLines is true for inline comments anchored to
// lines the pull request modified.
func ExtractSignals(body, path string, onChangedLines bool) triage.Signals {
	trimmed := strings.TrimSpace(body)
	suggestion := hasSuggestion(body)
	return triage.Signals{
		Security:       securityRe.MatchString(body),
		Bug:            bugRe.MatchString(body),
		Question:       questionRe.MatchString(trimmed) && !suggestion,
		Suggestion:     suggestion,
		DocsFile:       isDocsPath(path),
		OnChangedLines: onChangedLines,
	}
}

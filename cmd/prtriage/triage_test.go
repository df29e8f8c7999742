package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/prtriage/pkg/history"
	"github.com/jingkaihe/prtriage/pkg/platform"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

func TestTriageConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TriageConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *TriageConfig) {},
		},
		{
			name:    "missing PR URL",
			mutate:  func(c *TriageConfig) { c.PRURL = "" },
			wantErr: "PR URL",
		},
		{
			name:    "non-positive workers",
			mutate:  func(c *TriageConfig) { c.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "bad format",
			mutate:  func(c *TriageConfig) { c.Format = "xml" },
			wantErr: "unsupported format",
		},
		{
			name:    "missing directives",
			mutate:  func(c *TriageConfig) { c.DirectivesFile = "" },
			wantErr: "directives file",
		},
		{
			name:    "missing fix command",
			mutate:  func(c *TriageConfig) { c.FixCommand = "" },
			wantErr: "fix command",
		},
		{
			name: "dry run needs neither directives nor fix command",
			mutate: func(c *TriageConfig) {
				c.DryRun = true
				c.DirectivesFile = ""
				c.FixCommand = ""
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewTriageConfig()
			config.PRURL = "https://github.com/acme/widget/pull/1"
			config.DirectivesFile = "directives.yaml"
			config.FixCommand = "true"
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// memoryGateway serves a canned comment set and records posted statuses.
type memoryGateway struct {
	mu       sync.Mutex
	comments []platform.RawComment
	posts    []platform.StatusKind
}

func (g *memoryGateway) FetchComments(ctx context.Context, reviewRef string) ([]platform.RawComment, error) {
	return g.comments, nil
}

func (g *memoryGateway) PostStatus(ctx context.Context, commentID string, kind platform.StatusKind, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posts = append(g.posts, kind)
	return nil
}

func TestRunTriageEndToEnd(t *testing.T) {
	t.Setenv("PRTRIAGE_BASE_PATH", t.TempDir())

	dir := t.TempDir()
	directives := filepath.Join(dir, "directives.yaml")
	require.NoError(t, os.WriteFile(directives, []byte(`
rules:
  - select:
      severities: [critical]
    directive: auto-fix
`), 0o644))

	gw := &memoryGateway{
		comments: []platform.RawComment{
			{
				ID:            "C1",
				CreatedAt:     time.Now(),
				Body:          "credential leak",
				Location:      &triage.Location{Path: "auth.go", Line: 3},
				MergeBlocking: true,
				Signals:       triage.Signals{Security: true, OnChangedLines: true},
			},
			{ID: "C2", CreatedAt: time.Now(), Body: "why?", Signals: triage.Signals{Question: true}},
			{ID: "C3", CreatedAt: time.Now(), Body: "typo", Location: &triage.Location{Path: "README.md", Line: 1}, Signals: triage.Signals{DocsFile: true}},
		},
	}

	script := filepath.Join(dir, "fix.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat > /dev/null\necho commit-c1\n"), 0o755))

	config := NewTriageConfig()
	config.PRURL = "https://github.com/acme/widget/pull/7"
	config.DirectivesFile = directives
	config.FixCommand = script

	require.NoError(t, runTriage(context.Background(), config, gw))

	// Only the critical security comment went through the pipeline.
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, []platform.StatusKind{platform.StatusAcknowledgement, platform.StatusCompletion}, gw.posts)

	// The run was archived.
	dbPath, err := history.DefaultDBPath()
	require.NoError(t, err)
	st, err := history.NewStore(context.Background(), dbPath)
	require.NoError(t, err)
	defer st.Close()
	summaries, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, config.PRURL, summaries[0].ReviewRef)
}

func TestRunTriageDryRunStopsAfterDistribution(t *testing.T) {
	gw := &memoryGateway{
		comments: []platform.RawComment{
			{ID: "C1", Body: "bug here", Signals: triage.Signals{Bug: true}},
		},
	}
	config := NewTriageConfig()
	config.PRURL = "https://github.com/acme/widget/pull/7"
	config.DryRun = true

	require.NoError(t, runTriage(context.Background(), config, gw))
	assert.Empty(t, gw.posts)
}

func TestRunTriageEmptyPR(t *testing.T) {
	config := NewTriageConfig()
	config.PRURL = "https://github.com/acme/widget/pull/7"
	config.DryRun = true
	require.NoError(t, runTriage(context.Background(), config, &memoryGateway{}))
}

package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePRURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		owner   string
		repo    string
		number  int
		wantErr bool
	}{
		{
			name:   "valid URL",
			url:    "https://github.com/acme/widget/pull/42",
			owner:  "acme",
			repo:   "widget",
			number: 42,
		},
		{
			name:   "trailing slash",
			url:    "https://github.com/acme/widget/pull/42/",
			owner:  "acme",
			repo:   "widget",
			number: 42,
		},
		{
			name:   "surrounding whitespace",
			url:    "  https://github.com/acme/widget/pull/7  ",
			owner:  "acme",
			repo:   "widget",
			number: 7,
		},
		{name: "issue URL", url: "https://github.com/acme/widget/issues/42", wantErr: true},
		{name: "missing number", url: "https://github.com/acme/widget/pull/", wantErr: true},
		{name: "not github", url: "https://gitlab.com/acme/widget/pull/42", wantErr: true},
		{name: "files subpage", url: "https://github.com/acme/widget/pull/42/files", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, number, err := ParsePRURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.number, number)
		})
	}
}

func TestStatusPrefixCoversAllKinds(t *testing.T) {
	assert.Contains(t, statusPrefix("acknowledgement"), "prtriage")
	assert.Contains(t, statusPrefix("completion"), "prtriage")
	assert.Contains(t, statusPrefix("failure"), "prtriage")
	assert.Contains(t, statusPrefix("wont-fix-rationale"), "won't fix")
}

func TestPostStatusWithoutFetchFails(t *testing.T) {
	g := NewGateway(&Client{})
	err := g.PostStatus(t.Context(), "1", "completion", "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PR context")
}

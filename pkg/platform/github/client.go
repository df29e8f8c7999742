// Package github implements the platform gateway for GitHub pull requests
// using the GitHub REST API. It owns everything the triage core is agnostic
// to: URL parsing, pagination, signal extraction from comment text, and
// transport retries.
package github

import (
	"context"

	gh "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/jingkaihe/prtriage/pkg/logger"
)

// Client wraps the GitHub API client with authentication.
type Client struct {
	gh *gh.Client
}

// NewClient creates a GitHub client. An empty token yields an unauthenticated
// client with restricted rate limits.
func NewClient(ctx context.Context, token string) *Client {
	log := logger.G(ctx)

	if token == "" {
		log.Warn("no GitHub token provided, API rate limits will be restricted")
		return &Client{gh: gh.NewClient(nil)}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	log.Debug("GitHub client initialized with authentication")
	return &Client{gh: gh.NewClient(tc)}
}

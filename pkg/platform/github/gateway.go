package github

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	gh "github.com/google/go-github/v82/github"
	"github.com/pkg/errors"

	"github.com/jingkaihe/prtriage/pkg/logger"
	"github.com/jingkaihe/prtriage/pkg/platform"
	"github.com/jingkaihe/prtriage/pkg/triage"
)

const perPage = 100

// retryOpts bounds transport retries for GitHub API calls. These retries are
// transport-level only; remediation attempts themselves are never retried.
func retryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(500 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	}
}

var prURLRe = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/pull/(\d+)/?$`)

// ParsePRURL extracts owner, repo, and PR number from a GitHub pull request
// URL.
func ParsePRURL(prURL string) (owner, repo string, number int, err error) {
	matches := prURLRe.FindStringSubmatch(strings.TrimSpace(prURL))
	if len(matches) != 4 {
		return "", "", 0, errors.Errorf("invalid GitHub PR URL format: %s", prURL)
	}
	number, err = strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, errors.Errorf("invalid PR number: %s", matches[3])
	}
	return matches[1], matches[2], number, nil
}

// commentKind tracks which API surface a comment came from, since replies go
// back through the same surface.
type commentKind int

const (
	kindReview commentKind = iota
	kindIssue
)

// Gateway implements platform.Gateway for GitHub pull requests.
type Gateway struct {
	client *Client

	mu     sync.Mutex
	owner  string
	repo   string
	number int
	kinds  map[string]commentKind
}

// NewGateway builds a gateway around an authenticated client.
func NewGateway(client *Client) *Gateway {
	return &Gateway{
		client: client,
		kinds:  make(map[string]commentKind),
	}
}

// FetchComments retrieves all review (inline) and issue (general) comments
// for the PR identified by reviewRef, a GitHub PR URL. Comments belonging to
// a changes-requested review are flagged merge-blocking.
func (g *Gateway) FetchComments(ctx context.Context, reviewRef string) ([]platform.RawComment, error) {
	owner, repo, number, err := ParsePRURL(reviewRef)
	if err != nil {
		return nil, &platform.FetchError{ReviewRef: reviewRef, Err: err}
	}

	g.mu.Lock()
	g.owner, g.repo, g.number = owner, repo, number
	g.mu.Unlock()

	log := logger.G(ctx).WithField("pr", fmt.Sprintf("%s/%s#%d", owner, repo, number))

	blocking, err := g.blockingReviewIDs(ctx, owner, repo, number)
	if err != nil {
		return nil, &platform.FetchError{ReviewRef: reviewRef, Err: err}
	}

	var raw []platform.RawComment

	reviewComments, err := g.listReviewComments(ctx, owner, repo, number)
	if err != nil {
		return nil, &platform.FetchError{ReviewRef: reviewRef, Err: err}
	}
	for _, c := range reviewComments {
		id := strconv.FormatInt(c.GetID(), 10)
		rc := platform.RawComment{
			ID:            id,
			Author:        c.GetUser().GetLogin(),
			CreatedAt:     c.GetCreatedAt().Time,
			Body:          c.GetBody(),
			MergeBlocking: blocking[c.GetPullRequestReviewID()],
		}
		if c.GetPath() != "" {
			rc.Location = &triage.Location{Path: c.GetPath(), Line: c.GetLine()}
		}
		rc.Signals = ExtractSignals(c.GetBody(), c.GetPath(), c.GetLine() > 0)
		raw = append(raw, rc)
		g.recordKind(id, kindReview)
	}

	issueComments, err := g.listIssueComments(ctx, owner, repo, number)
	if err != nil {
		return nil, &platform.FetchError{ReviewRef: reviewRef, Err: err}
	}
	for _, c := range issueComments {
		id := strconv.FormatInt(c.GetID(), 10)
		rc := platform.RawComment{
			ID:        id,
			Author:    c.GetUser().GetLogin(),
			CreatedAt: c.GetCreatedAt().Time,
			Body:      c.GetBody(),
		}
		rc.Signals = ExtractSignals(c.GetBody(), "", false)
		raw = append(raw, rc)
		g.recordKind(id, kindIssue)
	}

	log.WithField("review_comments", len(reviewComments)).
		WithField("issue_comments", len(issueComments)).
		Info("fetched PR comments")
	return raw, nil
}

func (g *Gateway) recordKind(id string, kind commentKind) {
	g.mu.Lock()
	g.kinds[id] = kind
	g.mu.Unlock()
}

// blockingReviewIDs returns the ids of reviews whose state requests changes.
func (g *Gateway) blockingReviewIDs(ctx context.Context, owner, repo string, number int) (map[int64]bool, error) {
	blocking := make(map[int64]bool)
	opts := &gh.ListOptions{PerPage: perPage}
	for {
		var reviews []*gh.PullRequestReview
		var resp *gh.Response
		err := retry.Do(func() error {
			var err error
			reviews, resp, err = g.client.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
			return err
		}, retryOpts(ctx)...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list reviews")
		}
		for _, r := range reviews {
			if strings.EqualFold(r.GetState(), "CHANGES_REQUESTED") {
				blocking[r.GetID()] = true
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return blocking, nil
}

func (g *Gateway) listReviewComments(ctx context.Context, owner, repo string, number int) ([]*gh.PullRequestComment, error) {
	opts := &gh.PullRequestListCommentsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var all []*gh.PullRequestComment
	for {
		var comments []*gh.PullRequestComment
		var resp *gh.Response
		err := retry.Do(func() error {
			var err error
			comments, resp, err = g.client.gh.PullRequests.ListComments(ctx, owner, repo, number, opts)
			return err
		}, retryOpts(ctx)...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list review comments")
		}
		all = append(all, comments...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (g *Gateway) listIssueComments(ctx context.Context, owner, repo string, number int) ([]*gh.IssueComment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var all []*gh.IssueComment
	for {
		var comments []*gh.IssueComment
		var resp *gh.Response
		err := retry.Do(func() error {
			var err error
			comments, resp, err = g.client.gh.Issues.ListComments(ctx, owner, repo, number, opts)
			return err
		}, retryOpts(ctx)...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list issue comments")
		}
		all = append(all, comments...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// statusPrefix maps a status kind to the marker prepended to posted messages.
func statusPrefix(kind platform.StatusKind) string {
	switch kind {
	case platform.StatusAcknowledgement:
		return "🔧 **prtriage**"
	case platform.StatusCompletion:
		return "✅ **prtriage**"
	case platform.StatusFailure:
		return "❌ **prtriage**"
	case platform.StatusWontFixRationale:
		return "🚫 **prtriage** (won't fix)"
	default:
		return "**prtriage**"
	}
}

// PostStatus replies to the comment through the same API surface it was
// fetched from: inline review comments get a threaded reply, general
// comments get a new PR comment.
func (g *Gateway) PostStatus(ctx context.Context, commentID string, kind platform.StatusKind, message string) error {
	g.mu.Lock()
	owner, repo, number := g.owner, g.repo, g.number
	ck, known := g.kinds[commentID]
	g.mu.Unlock()

	if owner == "" {
		return errors.New("gateway has no PR context, call FetchComments first")
	}

	body := fmt.Sprintf("%s: %s", statusPrefix(kind), message)

	return retry.Do(func() error {
		if known && ck == kindReview {
			id, err := strconv.ParseInt(commentID, 10, 64)
			if err != nil {
				return retry.Unrecoverable(errors.Wrapf(err, "invalid review comment id %s", commentID))
			}
			_, _, err = g.client.gh.PullRequests.CreateCommentInReplyTo(ctx, owner, repo, number, body, id)
			return err
		}
		comment := &gh.IssueComment{Body: gh.Ptr(body)}
		_, _, err := g.client.gh.Issues.CreateComment(ctx, owner, repo, number, comment)
		return err
	}, retryOpts(ctx)...)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/knowledge-harvest/internal/models"
	"golang.org/x/oauth2"
)

// ghostLogin stands in for accounts that no longer exist
const ghostLogin = "ghost"

const perPage = 100

// maxRateLimitWait bounds how long a call waits for an exhausted rate limit to reset
const maxRateLimitWait = 15 * time.Minute

// GitHubClient represents a client for the GitHub REST API
type GitHubClient struct {
	client *github.Client
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(token string) *GitHubClient {
	var tc *http.Client

	if token != "" {
		// Create an authenticated client if a token is provided
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	return NewGitHubClientFrom(github.NewClient(tc))
}

// NewGitHubClientFrom wraps an already configured go-github client
func NewGitHubClientFrom(client *github.Client) *GitHubClient {
	return &GitHubClient{client: client}
}

// ListClosedIssues lists every closed issue of a repository, pull requests excluded
func (c *GitHubClient) ListClosedIssues(ctx context.Context, repo models.Repository) ([]models.Issue, error) {
	var allIssues []models.Issue
	opts := &github.IssueListByRepoOptions{
		State: "closed",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	for {
		var issues []*github.Issue
		resp, err := c.call(ctx, func() (resp *github.Response, err error) {
			issues, resp, err = c.client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list issues: %w", err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			allIssues = append(allIssues, ConvertGitHubIssue(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allIssues, nil
}

// ListClosedPullRequests lists every closed pull request of a repository
func (c *GitHubClient) ListClosedPullRequests(ctx context.Context, repo models.Repository) ([]models.PullRequest, error) {
	var allPulls []models.PullRequest
	opts := &github.PullRequestListOptions{
		State: "closed",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	for {
		var pulls []*github.PullRequest
		resp, err := c.call(ctx, func() (resp *github.Response, err error) {
			pulls, resp, err = c.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests: %w", err)
		}

		for _, pr := range pulls {
			allPulls = append(allPulls, ConvertGitHubPullRequest(pr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allPulls, nil
}

// IssueActivity fills in who closed the issue and its comments
func (c *GitHubClient) IssueActivity(ctx context.Context, repo models.Repository, issue models.Issue) (models.Issue, error) {
	full, err := c.getIssue(ctx, repo, issue.Number)
	if err != nil {
		return issue, fmt.Errorf("failed to get issue #%d: %w", issue.Number, err)
	}
	issue.ClosedBy = login(full.ClosedBy)

	comments, err := c.issueComments(ctx, repo, issue.Number)
	if err != nil {
		return issue, err
	}
	issue.Comments = comments

	return issue, nil
}

// PullRequestActivity fills in commits, closer, comments, reviews and review requests
func (c *GitHubClient) PullRequestActivity(ctx context.Context, repo models.Repository, pr models.PullRequest) (models.PullRequest, error) {
	var full *github.PullRequest
	_, err := c.call(ctx, func() (resp *github.Response, err error) {
		full, resp, err = c.client.PullRequests.Get(ctx, repo.Owner, repo.Name, pr.Number)
		return resp, err
	})
	if err != nil {
		return pr, fmt.Errorf("failed to get pull request #%d: %w", pr.Number, err)
	}
	pr.Commits = full.GetCommits()

	// closed_by is only exposed on the issue view of a pull request
	asIssue, err := c.getIssue(ctx, repo, pr.Number)
	if err != nil {
		return pr, fmt.Errorf("failed to get issue view of pull request #%d: %w", pr.Number, err)
	}
	pr.ClosedBy = login(asIssue.ClosedBy)

	if pr.Comments, err = c.issueComments(ctx, repo, pr.Number); err != nil {
		return pr, err
	}
	if pr.Reviews, err = c.reviews(ctx, repo, pr.Number); err != nil {
		return pr, err
	}

	var reviewers *github.Reviewers
	_, err = c.call(ctx, func() (resp *github.Response, err error) {
		reviewers, resp, err = c.client.PullRequests.ListReviewers(ctx, repo.Owner, repo.Name, pr.Number, &github.ListOptions{PerPage: perPage})
		return resp, err
	})
	if err != nil {
		return pr, fmt.Errorf("failed to list requested reviewers of #%d: %w", pr.Number, err)
	}
	pr.RequestedReviewers = make([]string, 0, len(reviewers.Users))
	for _, user := range reviewers.Users {
		pr.RequestedReviewers = append(pr.RequestedReviewers, login(user))
	}

	return pr, nil
}

// issueComments gets all comments of an issue or pull request
func (c *GitHubClient) issueComments(ctx context.Context, repo models.Repository, number int) ([]models.Comment, error) {
	var allComments []models.Comment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	for {
		var comments []*github.IssueComment
		resp, err := c.call(ctx, func() (resp *github.Response, err error) {
			comments, resp, err = c.client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list comments of #%d: %w", number, err)
		}

		for _, comment := range comments {
			allComments = append(allComments, ConvertGitHubComment(comment))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// reviews gets all reviews of a pull request
func (c *GitHubClient) reviews(ctx context.Context, repo models.Repository, number int) ([]models.Review, error) {
	var allReviews []models.Review
	opts := &github.ListOptions{PerPage: perPage}

	for {
		var reviews []*github.PullRequestReview
		resp, err := c.call(ctx, func() (resp *github.Response, err error) {
			reviews, resp, err = c.client.PullRequests.ListReviews(ctx, repo.Owner, repo.Name, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list reviews of #%d: %w", number, err)
		}

		for _, review := range reviews {
			// pending reviews have not been submitted yet
			if review.SubmittedAt == nil {
				continue
			}
			allReviews = append(allReviews, ConvertGitHubReview(review))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allReviews, nil
}

func (c *GitHubClient) getIssue(ctx context.Context, repo models.Repository, number int) (*github.Issue, error) {
	var issue *github.Issue
	_, err := c.call(ctx, func() (resp *github.Response, err error) {
		issue, resp, err = c.client.Issues.Get(ctx, repo.Owner, repo.Name, number)
		return resp, err
	})
	return issue, err
}

// call runs fn and, when GitHub reports the rate limit as exhausted, waits for
// the reset and runs it once more
func (c *GitHubClient) call(ctx context.Context, fn func() (*github.Response, error)) (*github.Response, error) {
	resp, err := fn()

	var rateErr *github.RateLimitError
	if !errors.As(err, &rateErr) {
		return resp, err
	}

	wait := time.Until(rateErr.Rate.Reset.Time)
	if wait > maxRateLimitWait {
		return resp, fmt.Errorf("rate limit resets in %s: %w", wait.Round(time.Second), err)
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-timer.C:
		}
	}

	return fn()
}

// login returns the login of a user, or the ghost login for deleted accounts
func login(user *github.User) string {
	if user == nil || user.GetLogin() == "" {
		return ghostLogin
	}
	return user.GetLogin()
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.GetName())
	}
	return names
}

// ConvertGitHubIssue converts a listed GitHub issue to our model
func ConvertGitHubIssue(issue *github.Issue) models.Issue {
	return models.Issue{
		Number:        issue.GetNumber(),
		Author:        login(issue.User),
		CreatedAt:     issue.GetCreatedAt().Time,
		ClosedAt:      issue.GetClosedAt().Time,
		Labels:        labelNames(issue.Labels),
		IsPullRequest: issue.IsPullRequest(),
	}
}

// ConvertGitHubPullRequest converts a listed GitHub pull request to our model
func ConvertGitHubPullRequest(pr *github.PullRequest) models.PullRequest {
	var mergedAt *time.Time
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		mergedAt = &t
	}

	return models.PullRequest{
		Issue: models.Issue{
			Number:        pr.GetNumber(),
			Author:        login(pr.User),
			CreatedAt:     pr.GetCreatedAt().Time,
			ClosedAt:      pr.GetClosedAt().Time,
			Labels:        labelNames(pr.Labels),
			IsPullRequest: true,
		},
		MergedAt: mergedAt,
		Commits:  pr.GetCommits(),
	}
}

// ConvertGitHubComment converts a GitHub comment to our model
func ConvertGitHubComment(comment *github.IssueComment) models.Comment {
	return models.Comment{
		Author: login(comment.User),
		Body:   comment.GetBody(),
	}
}

// ConvertGitHubReview converts a GitHub pull request review to our model
func ConvertGitHubReview(review *github.PullRequestReview) models.Review {
	return models.Review{
		ID:          review.GetID(),
		Author:      login(review.User),
		Body:        review.GetBody(),
		SubmittedAt: review.GetSubmittedAt().Time,
		State:       review.GetState(),
	}
}

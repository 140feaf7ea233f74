package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/wesm/knowledge-harvest/internal/models"
	"golang.org/x/oauth2"
)

// GraphQLClient represents a client for the GitHub GraphQL API
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a new GraphQL client
func NewGraphQLClient(token string) *GraphQLClient {
	var httpClient *http.Client
	if token != "" {
		src := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	return NewGraphQLClientFrom(githubv4.NewClient(httpClient))
}

// NewGraphQLClientFrom wraps an already configured githubv4 client
func NewGraphQLClientFrom(client *githubv4.Client) *GraphQLClient {
	return &GraphQLClient{client: client}
}

// Actor represents a GitHub user in GraphQL
type Actor struct {
	Login githubv4.String
}

type pageInfo struct {
	EndCursor   githubv4.String
	HasNextPage githubv4.Boolean
}

type labelConnection struct {
	Nodes []struct {
		Name githubv4.String
	}
}

// closedEvents holds the last CLOSED_EVENT of an issue timeline
type closedEvents struct {
	Nodes []struct {
		ClosedEvent struct {
			Actor *Actor
		} `graphql:"... on ClosedEvent"`
	}
}

type commentConnection struct {
	Nodes []struct {
		Body   githubv4.String
		Author *Actor
	}
	PageInfo pageInfo
}

type issueNode struct {
	Number    githubv4.Int
	CreatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	Author    *Actor
	Labels    labelConnection `graphql:"labels(first: 100)"`
}

type pullRequestNode struct {
	Number    githubv4.Int
	CreatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	MergedAt  *githubv4.DateTime
	Author    *Actor
	Labels    labelConnection `graphql:"labels(first: 100)"`
}

// ListClosedIssues lists every closed issue of a repository
func (c *GraphQLClient) ListClosedIssues(ctx context.Context, repo models.Repository) ([]models.Issue, error) {
	var allIssues []models.Issue
	variables := map[string]interface{}{
		"owner":   githubv4.String(repo.Owner),
		"name":    githubv4.String(repo.Name),
		"perPage": githubv4.Int(perPage),
		"cursor":  (*githubv4.String)(nil),
	}

	for {
		var query struct {
			Repository struct {
				Issues struct {
					Nodes    []issueNode
					PageInfo pageInfo
				} `graphql:"issues(first: $perPage, after: $cursor, states: CLOSED)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query issues: %w", err)
		}

		for _, node := range query.Repository.Issues.Nodes {
			allIssues = append(allIssues, models.Issue{
				Number:    int(node.Number),
				Author:    actorLogin(node.Author),
				CreatedAt: node.CreatedAt.Time,
				ClosedAt:  dateTime(node.ClosedAt),
				Labels:    graphQLLabels(node.Labels),
			})
		}

		page := query.Repository.Issues.PageInfo
		if !bool(page.HasNextPage) {
			break
		}
		variables["cursor"] = githubv4.NewString(page.EndCursor)
	}

	return allIssues, nil
}

// ListClosedPullRequests lists every closed or merged pull request of a repository
func (c *GraphQLClient) ListClosedPullRequests(ctx context.Context, repo models.Repository) ([]models.PullRequest, error) {
	var allPulls []models.PullRequest
	variables := map[string]interface{}{
		"owner":   githubv4.String(repo.Owner),
		"name":    githubv4.String(repo.Name),
		"perPage": githubv4.Int(perPage),
		"cursor":  (*githubv4.String)(nil),
	}

	for {
		var query struct {
			Repository struct {
				PullRequests struct {
					Nodes    []pullRequestNode
					PageInfo pageInfo
				} `graphql:"pullRequests(first: $perPage, after: $cursor, states: [CLOSED, MERGED])"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query pull requests: %w", err)
		}

		for _, node := range query.Repository.PullRequests.Nodes {
			var mergedAt *time.Time
			if node.MergedAt != nil {
				t := node.MergedAt.Time
				mergedAt = &t
			}
			allPulls = append(allPulls, models.PullRequest{
				Issue: models.Issue{
					Number:        int(node.Number),
					Author:        actorLogin(node.Author),
					CreatedAt:     node.CreatedAt.Time,
					ClosedAt:      dateTime(node.ClosedAt),
					Labels:        graphQLLabels(node.Labels),
					IsPullRequest: true,
				},
				MergedAt: mergedAt,
			})
		}

		page := query.Repository.PullRequests.PageInfo
		if !bool(page.HasNextPage) {
			break
		}
		variables["cursor"] = githubv4.NewString(page.EndCursor)
	}

	return allPulls, nil
}

// IssueActivity fills in who closed the issue and its comments
func (c *GraphQLClient) IssueActivity(ctx context.Context, repo models.Repository, issue models.Issue) (models.Issue, error) {
	var query struct {
		Repository struct {
			Issue struct {
				TimelineItems closedEvents `graphql:"timelineItems(itemTypes: [CLOSED_EVENT], last: 1)"`
			} `graphql:"issue(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":  githubv4.String(repo.Owner),
		"name":   githubv4.String(repo.Name),
		"number": githubv4.Int(issue.Number),
	}
	if err := c.client.Query(ctx, &query, variables); err != nil {
		return issue, fmt.Errorf("failed to query issue #%d: %w", issue.Number, err)
	}
	issue.ClosedBy = closer(query.Repository.Issue.TimelineItems)

	comments, err := c.comments(ctx, repo, issue.Number, false)
	if err != nil {
		return issue, err
	}
	issue.Comments = comments

	return issue, nil
}

// PullRequestActivity fills in commits, closer, comments, reviews and review requests
func (c *GraphQLClient) PullRequestActivity(ctx context.Context, repo models.Repository, pr models.PullRequest) (models.PullRequest, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				Commits struct {
					TotalCount githubv4.Int
				}
				TimelineItems  closedEvents `graphql:"timelineItems(itemTypes: [CLOSED_EVENT], last: 1)"`
				ReviewRequests struct {
					Nodes []struct {
						RequestedReviewer struct {
							User struct {
								Login githubv4.String
							} `graphql:"... on User"`
						}
					}
				} `graphql:"reviewRequests(first: 100)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":  githubv4.String(repo.Owner),
		"name":   githubv4.String(repo.Name),
		"number": githubv4.Int(pr.Number),
	}
	if err := c.client.Query(ctx, &query, variables); err != nil {
		return pr, fmt.Errorf("failed to query pull request #%d: %w", pr.Number, err)
	}

	node := query.Repository.PullRequest
	pr.Commits = int(node.Commits.TotalCount)
	pr.ClosedBy = closer(node.TimelineItems)
	pr.RequestedReviewers = make([]string, 0, len(node.ReviewRequests.Nodes))
	for _, request := range node.ReviewRequests.Nodes {
		// team review requests carry no user login
		if reviewer := string(request.RequestedReviewer.User.Login); reviewer != "" {
			pr.RequestedReviewers = append(pr.RequestedReviewers, reviewer)
		}
	}

	var err error
	if pr.Comments, err = c.comments(ctx, repo, pr.Number, true); err != nil {
		return pr, err
	}
	if pr.Reviews, err = c.reviews(ctx, repo, pr.Number); err != nil {
		return pr, err
	}

	return pr, nil
}

// comments pages through the comments of an issue or a pull request
func (c *GraphQLClient) comments(ctx context.Context, repo models.Repository, number int, pullRequest bool) ([]models.Comment, error) {
	var allComments []models.Comment
	variables := map[string]interface{}{
		"owner":   githubv4.String(repo.Owner),
		"name":    githubv4.String(repo.Name),
		"number":  githubv4.Int(number),
		"perPage": githubv4.Int(perPage),
		"cursor":  (*githubv4.String)(nil),
	}

	for {
		var conn commentConnection
		if pullRequest {
			var query struct {
				Repository struct {
					PullRequest struct {
						Comments commentConnection `graphql:"comments(first: $perPage, after: $cursor)"`
					} `graphql:"pullRequest(number: $number)"`
				} `graphql:"repository(owner: $owner, name: $name)"`
			}
			if err := c.client.Query(ctx, &query, variables); err != nil {
				return nil, fmt.Errorf("failed to query comments of #%d: %w", number, err)
			}
			conn = query.Repository.PullRequest.Comments
		} else {
			var query struct {
				Repository struct {
					Issue struct {
						Comments commentConnection `graphql:"comments(first: $perPage, after: $cursor)"`
					} `graphql:"issue(number: $number)"`
				} `graphql:"repository(owner: $owner, name: $name)"`
			}
			if err := c.client.Query(ctx, &query, variables); err != nil {
				return nil, fmt.Errorf("failed to query comments of #%d: %w", number, err)
			}
			conn = query.Repository.Issue.Comments
		}

		for _, node := range conn.Nodes {
			allComments = append(allComments, models.Comment{
				Author: actorLogin(node.Author),
				Body:   string(node.Body),
			})
		}

		if !bool(conn.PageInfo.HasNextPage) {
			break
		}
		variables["cursor"] = githubv4.NewString(conn.PageInfo.EndCursor)
	}

	return allComments, nil
}

// reviews pages through the reviews of a pull request
func (c *GraphQLClient) reviews(ctx context.Context, repo models.Repository, number int) ([]models.Review, error) {
	var allReviews []models.Review
	variables := map[string]interface{}{
		"owner":   githubv4.String(repo.Owner),
		"name":    githubv4.String(repo.Name),
		"number":  githubv4.Int(number),
		"perPage": githubv4.Int(perPage),
		"cursor":  (*githubv4.String)(nil),
	}

	for {
		var query struct {
			Repository struct {
				PullRequest struct {
					Reviews struct {
						Nodes []struct {
							DatabaseID  int64 `graphql:"databaseId"`
							Author      *Actor
							Body        githubv4.String
							SubmittedAt *githubv4.DateTime
							State       githubv4.String
						}
						PageInfo pageInfo
					} `graphql:"reviews(first: $perPage, after: $cursor)"`
				} `graphql:"pullRequest(number: $number)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query reviews of #%d: %w", number, err)
		}

		conn := query.Repository.PullRequest.Reviews
		for _, node := range conn.Nodes {
			// pending reviews have not been submitted yet
			if node.SubmittedAt == nil {
				continue
			}
			allReviews = append(allReviews, models.Review{
				ID:          node.DatabaseID,
				Author:      actorLogin(node.Author),
				Body:        string(node.Body),
				SubmittedAt: dateTime(node.SubmittedAt),
				State:       string(node.State),
			})
		}

		if !bool(conn.PageInfo.HasNextPage) {
			break
		}
		variables["cursor"] = githubv4.NewString(conn.PageInfo.EndCursor)
	}

	return allReviews, nil
}

// actorLogin returns the login of an actor, or the ghost login for deleted accounts
func actorLogin(actor *Actor) string {
	if actor == nil || actor.Login == "" {
		return ghostLogin
	}
	return string(actor.Login)
}

// closer returns who triggered the last closed event
func closer(events closedEvents) string {
	if len(events.Nodes) == 0 {
		return ghostLogin
	}
	return actorLogin(events.Nodes[len(events.Nodes)-1].ClosedEvent.Actor)
}

// dateTime converts a nullable githubv4.DateTime, mapping null to the zero time
func dateTime(dt *githubv4.DateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	return dt.Time
}

func graphQLLabels(labels labelConnection) []string {
	names := make([]string, 0, len(labels.Nodes))
	for _, label := range labels.Nodes {
		names = append(names, string(label.Name))
	}
	return names
}

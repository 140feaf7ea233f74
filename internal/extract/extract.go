// Package extract turns remote issues and pull requests into knowledge records.
// Every function here is pure: it only looks at the entity it is given.
package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/wesm/knowledge-harvest/internal/models"
)

// Issue extracts the record for a closed issue.
// It reports false for pull requests listed as issues.
func Issue(issue models.Issue) (models.IssueRecord, bool) {
	if issue.IsPullRequest {
		return models.IssueRecord{}, false
	}

	createdAt, closedAt := lifetime(issue)
	return models.IssueRecord{
		CreatedBy:    issue.Author,
		CreatedAt:    createdAt,
		ClosedBy:     issue.ClosedBy,
		ClosedAt:     closedAt,
		Labels:       Labels(issue.Labels),
		TimeToClose:  closedAt - createdAt,
		Interactions: Interactions(issue.Comments),
	}, true
}

// PullRequest extracts the record for a closed pull request
func PullRequest(pr models.PullRequest) models.PullRequestRecord {
	createdAt, closedAt := lifetime(pr.Issue)

	var mergedAt *float64
	if pr.MergedAt != nil {
		t := epoch(*pr.MergedAt)
		mergedAt = &t
	}

	bodies := make([]string, 0, len(pr.Comments))
	for _, c := range pr.Comments {
		bodies = append(bodies, c.Body)
	}

	return models.PullRequestRecord{
		Size:               Size(pr.Labels),
		Labels:             Labels(pr.Labels),
		CreatedBy:          pr.Author,
		CreatedAt:          createdAt,
		ClosedAt:           closedAt,
		ClosedBy:           pr.ClosedBy,
		TimeToClose:        closedAt - createdAt,
		MergedAt:           mergedAt,
		CommitsNumber:      pr.Commits,
		ReferencedIssues:   ReferencedIssues(bodies),
		Interactions:       Interactions(pr.Comments),
		Reviews:            Reviews(pr.Reviews),
		RequestedReviewers: RequestedReviewers(pr.RequestedReviewers),
	}
}

// Interactions sums the words each author wrote across the comments
func Interactions(comments []models.Comment) map[string]int {
	interactions := make(map[string]int)
	for _, c := range comments {
		interactions[c.Author] += WordCount(c.Body)
	}
	return interactions
}

// Reviews extracts one record per review, keyed by review id
func Reviews(reviews []models.Review) map[string]models.ReviewRecord {
	out := make(map[string]models.ReviewRecord, len(reviews))
	for _, r := range reviews {
		out[strconv.FormatInt(r.ID, 10)] = models.ReviewRecord{
			Author:      r.Author,
			WordsCount:  WordCount(r.Body),
			SubmittedAt: epoch(r.SubmittedAt),
			State:       r.State,
		}
	}
	return out
}

// RequestedReviewers copies the requested reviewer logins into a non-nil list
func RequestedReviewers(logins []string) []string {
	return append(make([]string, 0, len(logins)), logins...)
}

// WordCount counts the whitespace separated words of s
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// lifetime returns creation and closing time in epoch seconds.
// An entity without a closing time is treated as closed when created.
func lifetime(issue models.Issue) (float64, float64) {
	createdAt := epoch(issue.CreatedAt)
	if issue.ClosedAt.IsZero() {
		return createdAt, createdAt
	}
	return createdAt, epoch(issue.ClosedAt)
}

func epoch(t time.Time) float64 {
	return float64(t.Unix())
}

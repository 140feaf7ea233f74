package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/knowledge-harvest/internal/models"
)

var testRepo = models.Repository{Owner: "octo", Name: "hello"}

func setupREST(t *testing.T) (*GitHubClient, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return NewGitHubClientFrom(client), mux
}

func TestGitHubClient_ListClosedIssues(t *testing.T) {
	client, mux := setupREST(t)

	mux.HandleFunc("/repos/octo/hello/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", `</repos/octo/hello/issues?state=closed&page=2>; rel="next"`)
			fmt.Fprint(w, `[
				{"number":1,"user":{"login":"alice"},"created_at":"2024-01-01T00:00:00Z","closed_at":"2024-01-02T00:00:00Z","labels":[{"name":"bug"}]},
				{"number":2,"user":{"login":"bob"},"pull_request":{"url":"https://api.github.com/repos/octo/hello/pulls/2"}}
			]`)
			return
		}
		fmt.Fprint(w, `[{"number":3,"user":null,"created_at":"2024-01-03T00:00:00Z","closed_at":"2024-01-04T00:00:00Z"}]`)
	})

	issues, err := client.ListClosedIssues(context.Background(), testRepo)
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, models.Issue{
		Number:    1,
		Author:    "alice",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ClosedAt:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Labels:    []string{"bug"},
	}, issues[0])
	assert.Equal(t, 3, issues[1].Number)
	assert.Equal(t, ghostLogin, issues[1].Author)
}

func TestGitHubClient_IssueActivity(t *testing.T) {
	client, mux := setupREST(t)

	mux.HandleFunc("/repos/octo/hello/issues/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":1,"closed_by":{"login":"bob"}}`)
	})
	mux.HandleFunc("/repos/octo/hello/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"body":"hi there","user":{"login":"bob"}},{"body":"ok","user":{"login":"carol"}}]`)
	})

	issue, err := client.IssueActivity(context.Background(), testRepo, models.Issue{Number: 1, Author: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "alice", issue.Author)
	assert.Equal(t, "bob", issue.ClosedBy)
	assert.Equal(t, []models.Comment{
		{Author: "bob", Body: "hi there"},
		{Author: "carol", Body: "ok"},
	}, issue.Comments)
}

func TestGitHubClient_IssueActivityError(t *testing.T) {
	client, mux := setupREST(t)

	mux.HandleFunc("/repos/octo/hello/issues/1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Server Error"}`, http.StatusInternalServerError)
	})

	_, err := client.IssueActivity(context.Background(), testRepo, models.Issue{Number: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get issue #1")
}

func TestGitHubClient_ListClosedPullRequests(t *testing.T) {
	client, mux := setupREST(t)

	mux.HandleFunc("/repos/octo/hello/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[
			{"number":5,"user":{"login":"alice"},"created_at":"2024-02-01T00:00:00Z","closed_at":"2024-02-02T00:00:00Z","merged_at":"2024-02-02T00:00:00Z","labels":[{"name":"size/S"}]},
			{"number":6,"user":{"login":"bob"},"created_at":"2024-02-03T00:00:00Z","closed_at":"2024-02-04T00:00:00Z"}
		]`)
	})

	pulls, err := client.ListClosedPullRequests(context.Background(), testRepo)
	require.NoError(t, err)
	require.Len(t, pulls, 2)

	require.NotNil(t, pulls[0].MergedAt)
	assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), *pulls[0].MergedAt)
	assert.Equal(t, []string{"size/S"}, pulls[0].Labels)
	assert.True(t, pulls[0].IsPullRequest)
	assert.Nil(t, pulls[1].MergedAt)
	assert.Equal(t, "bob", pulls[1].Author)
}

func TestGitHubClient_PullRequestActivity(t *testing.T) {
	client, mux := setupREST(t)

	mux.HandleFunc("/repos/octo/hello/pulls/5", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":5,"commits":4}`)
	})
	mux.HandleFunc("/repos/octo/hello/issues/5", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":5,"closed_by":{"login":"carol"}}`)
	})
	mux.HandleFunc("/repos/octo/hello/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"body":"fixes https://github.com/octo/hello/issues/1","user":{"login":"alice"}}]`)
	})
	mux.HandleFunc("/repos/octo/hello/pulls/5/reviews", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":11,"user":{"login":"carol"},"body":"ship it","submitted_at":"2024-02-02T00:00:00Z","state":"APPROVED"},
			{"id":12,"user":{"login":"dave"},"body":"draft","state":"PENDING"}
		]`)
	})
	mux.HandleFunc("/repos/octo/hello/pulls/5/requested_reviewers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"users":[{"login":"dave"}],"teams":[{"slug":"core"}]}`)
	})

	pr, err := client.PullRequestActivity(context.Background(), testRepo, models.PullRequest{Issue: models.Issue{Number: 5}})
	require.NoError(t, err)

	assert.Equal(t, 4, pr.Commits)
	assert.Equal(t, "carol", pr.ClosedBy)
	assert.Equal(t, []models.Comment{{Author: "alice", Body: "fixes https://github.com/octo/hello/issues/1"}}, pr.Comments)
	assert.Equal(t, []models.Review{{
		ID:          11,
		Author:      "carol",
		Body:        "ship it",
		SubmittedAt: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
		State:       "APPROVED",
	}}, pr.Reviews)
	assert.Equal(t, []string{"dave"}, pr.RequestedReviewers)
}

func TestGitHubClient_RetriesAfterRateLimitReset(t *testing.T) {
	client, mux := setupREST(t)

	calls := 0
	mux.HandleFunc("/repos/octo/hello/issues/1", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(-time.Second).Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
			return
		}
		fmt.Fprint(w, `{"number":1,"closed_by":{"login":"bob"}}`)
	})
	mux.HandleFunc("/repos/octo/hello/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	issue, err := client.IssueActivity(context.Background(), testRepo, models.Issue{Number: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "bob", issue.ClosedBy)
}

func TestGitHubClient_RateLimitTooFarAway(t *testing.T) {
	client, mux := setupREST(t)

	mux.HandleFunc("/repos/octo/hello/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	})

	_, err := client.ListClosedIssues(context.Background(), testRepo)
	require.Error(t, err)

	var rateErr *github.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
	assert.Contains(t, err.Error(), "rate limit resets in")
}

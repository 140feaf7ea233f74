package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/knowledge-harvest/internal/models"
)

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// setupGraphQL serves every query with respond, which returns the "data" payload
func setupGraphQL(t *testing.T, respond func(req graphQLRequest) string) *GraphQLClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":%s}`, respond(req))
	}))
	t.Cleanup(server.Close)

	return NewGraphQLClientFrom(githubv4.NewEnterpriseClient(server.URL, nil))
}

func TestGraphQLClient_ListClosedIssues(t *testing.T) {
	var cursors []interface{}
	client := setupGraphQL(t, func(req graphQLRequest) string {
		require.Contains(t, req.Query, "issues(")
		cursors = append(cursors, req.Variables["cursor"])
		if req.Variables["cursor"] == nil {
			return `{"repository":{"issues":{
				"nodes":[{"number":1,"createdAt":"2024-01-01T00:00:00Z","closedAt":"2024-01-02T00:00:00Z","author":{"login":"alice"},"labels":{"nodes":[{"name":"bug"}]}}],
				"pageInfo":{"endCursor":"c1","hasNextPage":true}}}}`
		}
		return `{"repository":{"issues":{
			"nodes":[{"number":2,"createdAt":"2024-01-03T00:00:00Z","closedAt":null,"author":null,"labels":{"nodes":[]}}],
			"pageInfo":{"endCursor":"c2","hasNextPage":false}}}}`
	})

	issues, err := client.ListClosedIssues(context.Background(), testRepo)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{nil, "c1"}, cursors)
	require.Len(t, issues, 2)
	assert.Equal(t, models.Issue{
		Number:    1,
		Author:    "alice",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ClosedAt:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Labels:    []string{"bug"},
	}, issues[0])
	assert.Equal(t, ghostLogin, issues[1].Author)
	assert.True(t, issues[1].ClosedAt.IsZero())
}

func TestGraphQLClient_IssueActivity(t *testing.T) {
	client := setupGraphQL(t, func(req graphQLRequest) string {
		switch {
		case strings.Contains(req.Query, "timelineItems"):
			return `{"repository":{"issue":{"timelineItems":{"nodes":[{"actor":{"login":"bob"}}]}}}}`
		case strings.Contains(req.Query, "comments("):
			return `{"repository":{"issue":{"comments":{
				"nodes":[{"body":"hi there","author":{"login":"bob"}},{"body":"ok","author":null}],
				"pageInfo":{"endCursor":"x","hasNextPage":false}}}}}`
		}
		t.Fatalf("unexpected query %s", req.Query)
		return ""
	})

	issue, err := client.IssueActivity(context.Background(), testRepo, models.Issue{Number: 1})
	require.NoError(t, err)

	assert.Equal(t, "bob", issue.ClosedBy)
	assert.Equal(t, []models.Comment{
		{Author: "bob", Body: "hi there"},
		{Author: ghostLogin, Body: "ok"},
	}, issue.Comments)
}

func TestGraphQLClient_PullRequestActivity(t *testing.T) {
	client := setupGraphQL(t, func(req graphQLRequest) string {
		switch {
		case strings.Contains(req.Query, "reviewRequests"):
			return `{"repository":{"pullRequest":{
				"commits":{"totalCount":4},
				"timelineItems":{"nodes":[{"actor":{"login":"carol"}}]},
				"reviewRequests":{"nodes":[{"requestedReviewer":{"login":"dave"}},{"requestedReviewer":{}}]}}}}`
		case strings.Contains(req.Query, "reviews("):
			return `{"repository":{"pullRequest":{"reviews":{
				"nodes":[
					{"databaseId":3000000001,"author":{"login":"carol"},"body":"ship it","submittedAt":"2024-02-02T00:00:00Z","state":"APPROVED"},
					{"databaseId":3000000002,"author":{"login":"dave"},"body":"draft","submittedAt":null,"state":"PENDING"}
				],
				"pageInfo":{"endCursor":"r1","hasNextPage":false}}}}}`
		case strings.Contains(req.Query, "comments("):
			return `{"repository":{"pullRequest":{"comments":{
				"nodes":[{"body":"closes https://github.com/octo/hello/issues/1","author":{"login":"alice"}}],
				"pageInfo":{"endCursor":"k1","hasNextPage":false}}}}}`
		}
		t.Fatalf("unexpected query %s", req.Query)
		return ""
	})

	pr, err := client.PullRequestActivity(context.Background(), testRepo, models.PullRequest{Issue: models.Issue{Number: 5}})
	require.NoError(t, err)

	assert.Equal(t, 4, pr.Commits)
	assert.Equal(t, "carol", pr.ClosedBy)
	assert.Equal(t, []string{"dave"}, pr.RequestedReviewers)
	assert.Equal(t, []models.Comment{{Author: "alice", Body: "closes https://github.com/octo/hello/issues/1"}}, pr.Comments)
	assert.Equal(t, []models.Review{{
		ID:          3000000001,
		Author:      "carol",
		Body:        "ship it",
		SubmittedAt: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
		State:       "APPROVED",
	}}, pr.Reviews)
}

func TestGraphQLClient_ListClosedPullRequests(t *testing.T) {
	client := setupGraphQL(t, func(req graphQLRequest) string {
		require.Contains(t, req.Query, "pullRequests(")
		require.Contains(t, req.Query, "states: [CLOSED, MERGED]")
		if req.Variables["cursor"] == nil {
			return `{"repository":{"pullRequests":{
				"nodes":[{"number":5,"createdAt":"2024-02-01T00:00:00Z","closedAt":"2024-02-02T00:00:00Z","mergedAt":"2024-02-02T00:00:00Z","author":{"login":"alice"},"labels":{"nodes":[{"name":"size/S"}]}}],
				"pageInfo":{"endCursor":"p1","hasNextPage":true}}}}`
		}
		assert.Equal(t, "p1", req.Variables["cursor"])
		return `{"repository":{"pullRequests":{
			"nodes":[{"number":6,"createdAt":"2024-02-03T00:00:00Z","closedAt":"2024-02-04T00:00:00Z","mergedAt":null,"author":{"login":"bob"},"labels":{"nodes":[]}}],
			"pageInfo":{"endCursor":"p2","hasNextPage":false}}}}`
	})

	pulls, err := client.ListClosedPullRequests(context.Background(), testRepo)
	require.NoError(t, err)
	require.Len(t, pulls, 2)

	assert.Equal(t, 5, pulls[0].Number)
	assert.True(t, pulls[0].IsPullRequest)
	assert.Equal(t, []string{"size/S"}, pulls[0].Labels)
	require.NotNil(t, pulls[0].MergedAt)
	assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), *pulls[0].MergedAt)

	assert.Equal(t, "bob", pulls[1].Author)
	assert.Nil(t, pulls[1].MergedAt)
}

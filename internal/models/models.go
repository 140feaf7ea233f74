package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind identifies which kind of entity a snapshot holds
type Kind string

const (
	// KindIssue is a closed issue that is not a pull request
	KindIssue Kind = "Issue"
	// KindPullRequest is a closed pull request
	KindPullRequest Kind = "PullRequest"
)

// Kinds lists every tracked entity kind in sync order
var Kinds = []Kind{KindIssue, KindPullRequest}

// FileName returns the base name of the snapshot document for the kind
func (k Kind) FileName() string {
	switch k {
	case KindIssue:
		return "issues"
	case KindPullRequest:
		return "pull_requests"
	default:
		return strings.ToLower(string(k))
	}
}

// Repository represents a GitHub repository
type Repository struct {
	Owner string
	Name  string
}

// FullName returns the repository in the format "owner/name"
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// repositorySegment is the character set GitHub allows in owner and repository names
var repositorySegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseRepository parses a repository string in the format "owner/name".
// Segments must be valid GitHub names; "." and ".." are rejected since the
// full name doubles as a storage path.
func ParseRepository(s string) (Repository, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || !validSegment(parts[0]) || !validSegment(parts[1]) {
		return Repository{}, fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", s)
	}
	return Repository{Owner: parts[0], Name: parts[1]}, nil
}

func validSegment(s string) bool {
	return s != "." && s != ".." && repositorySegment.MatchString(s)
}

// Comment represents a comment on an issue or pull request
type Comment struct {
	Author string
	Body   string
}

// Issue represents a closed issue as listed by the remote service.
// ClosedBy and Comments are only populated once the issue activity is fetched.
type Issue struct {
	Number        int
	Author        string
	CreatedAt     time.Time
	ClosedAt      time.Time
	ClosedBy      string
	Labels        []string
	Comments      []Comment
	IsPullRequest bool
}

// Review represents a review submitted on a pull request
type Review struct {
	ID          int64
	Author      string
	Body        string
	SubmittedAt time.Time
	State       string
}

// PullRequest represents a closed pull request
type PullRequest struct {
	Issue

	MergedAt           *time.Time
	Commits            int
	Reviews            []Review
	RequestedReviewers []string
}

// IssueRecord is the persisted knowledge about one closed issue
type IssueRecord struct {
	CreatedBy    string         `json:"created_by"`
	CreatedAt    float64        `json:"created_at"`
	ClosedBy     string         `json:"closed_by"`
	ClosedAt     float64        `json:"closed_at"`
	Labels       []string       `json:"labels"`
	TimeToClose  float64        `json:"time_to_close"`
	Interactions map[string]int `json:"interactions"`
}

// ReviewRecord is the persisted knowledge about one pull request review
type ReviewRecord struct {
	Author      string  `json:"author"`
	WordsCount  int     `json:"words_count"`
	SubmittedAt float64 `json:"submitted_at"`
	State       string  `json:"state"`
}

// PullRequestRecord is the persisted knowledge about one closed pull request
type PullRequestRecord struct {
	Size               *string                 `json:"size"`
	Labels             []string                `json:"labels"`
	CreatedBy          string                  `json:"created_by"`
	CreatedAt          float64                 `json:"created_at"`
	ClosedAt           float64                 `json:"closed_at"`
	ClosedBy           string                  `json:"closed_by"`
	TimeToClose        float64                 `json:"time_to_close"`
	MergedAt           *float64                `json:"merged_at"`
	CommitsNumber      int                     `json:"commits_number"`
	ReferencedIssues   []string                `json:"referenced_issues"`
	Interactions       map[string]int          `json:"interactions"`
	Reviews            map[string]ReviewRecord `json:"reviews"`
	RequestedReviewers []string                `json:"requested_reviewers"`
}

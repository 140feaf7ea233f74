package extract

import "strings"

// closingKeywords mark a comment token as closing the issue linked right after it
var closingKeywords = map[string]struct{}{
	"close":    {},
	"closes":   {},
	"closed":   {},
	"fix":      {},
	"fixes":    {},
	"fixed":    {},
	"resolve":  {},
	"resolves": {},
	"resolved": {},
}

// ReferenceStatus tells whether a closing keyword was followed by an issue URL
type ReferenceStatus int

const (
	// ReferenceFound means the keyword was followed by an https URL
	ReferenceFound ReferenceStatus = iota
	// ReferenceMalformed means the keyword had no qualifying URL after it
	ReferenceMalformed
)

// Reference is one closing keyword occurrence in a comment body
type Reference struct {
	Status  ReferenceStatus
	Keyword string
	IssueID string
}

// ScanReferences finds every closing keyword in body and resolves the issue it points to.
// Tokens are split on single spaces; a keyword may carry a trailing colon.
func ScanReferences(body string) []Reference {
	var refs []Reference
	tokens := strings.Split(body, " ")
	for i, token := range tokens {
		keyword := strings.TrimSuffix(token, ":")
		if _, ok := closingKeywords[keyword]; !ok {
			continue
		}
		refs = append(refs, resolveReference(keyword, tokens, i+1))
	}
	return refs
}

func resolveReference(keyword string, tokens []string, next int) Reference {
	if next >= len(tokens) || !strings.HasPrefix(tokens[next], "https") {
		return Reference{Status: ReferenceMalformed, Keyword: keyword}
	}
	url := strings.TrimSpace(tokens[next])
	id := url[strings.LastIndex(url, "/")+1:]
	return Reference{Status: ReferenceFound, Keyword: keyword, IssueID: id}
}

// ReferencedIssues returns the ids of all issues closed by the given comment bodies.
// Malformed references are dropped; duplicates are kept.
func ReferencedIssues(bodies []string) []string {
	ids := make([]string, 0)
	for _, body := range bodies {
		for _, ref := range ScanReferences(body) {
			if ref.Status == ReferenceFound {
				ids = append(ids, ref.IssueID)
			}
		}
	}
	return ids
}

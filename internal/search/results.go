/*
Package search implements the activity search index.

Entries are stored in a Bleve index keyed by screenshot id, so writing an
entry twice replaces it rather than duplicating it. Queries combine BM25
text matching with exact filters on tags, date, application and capture
time.
*/
package search

import "github.com/khanglvm/monitome/internal/activity"

// Hit is a single search result with relevance score.
type Hit struct {
	Entry *activity.Entry `json:"entry"`
	Score float64         `json:"score"`
}

// Results is one page of search hits.
type Results struct {
	// Total counts all matches, not just this page.
	Total uint64 `json:"total"`
	Hits  []Hit  `json:"hits"`
}

// Entries returns the hit entries in result order.
func (r *Results) Entries() []*activity.Entry {
	out := make([]*activity.Entry, 0, len(r.Hits))
	for _, h := range r.Hits {
		out = append(out, h.Entry)
	}
	return out
}

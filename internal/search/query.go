package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/khanglvm/monitome/internal/activity"
)

// Query is a predicate over entries. Zero-valued fields do not filter.
type Query struct {
	// Text is matched against all analyzed fields.
	Text string

	// Tags must all be present on a matching entry.
	Tags []string

	// Date restricts to one calendar day (YYYY-MM-DD).
	Date string

	// App restricts to one application name, case-insensitive.
	App string

	// From and To bound the capture time, inclusive.
	From time.Time
	To   time.Time

	Limit  int
	Offset int
}

const (
	defaultLimit = 20
	maxLimit     = 1000
)

// Search runs q and returns matching entries, most relevant first when
// q has text, otherwise most recent first.
func (i *Index) Search(q Query) (*Results, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, q.Offset, false)
	req.Fields = []string{"entry"}
	if strings.TrimSpace(q.Text) != "" {
		req.SortBy([]string{"-_score", "-created_at"})
	} else {
		req.SortBy([]string{"-created_at"})
	}

	res, err := i.bleveIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return &Results{
		Total: res.Total,
		Hits:  convertBleveResults(res),
	}, nil
}

// buildQuery combines the text match with keyword and range filters.
func buildQuery(q Query) query.Query {
	var must []query.Query

	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, bleve.NewMatchQuery(text))
	}

	for _, tag := range activity.NormalizeTags(q.Tags) {
		tq := bleve.NewTermQuery(tag)
		tq.SetField("tags")
		must = append(must, tq)
	}

	if q.Date != "" {
		dq := bleve.NewTermQuery(q.Date)
		dq.SetField("date")
		must = append(must, dq)
	}

	if app := strings.ToLower(strings.TrimSpace(q.App)); app != "" {
		aq := bleve.NewTermQuery(app)
		aq.SetField("app")
		must = append(must, aq)
	}

	if !q.From.IsZero() || !q.To.IsZero() {
		inclusive := true
		rq := bleve.NewDateRangeInclusiveQuery(q.From, q.To, &inclusive, &inclusive)
		rq.SetField("created_at")
		must = append(must, rq)
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return bleve.NewConjunctionQuery(must...)
	}
}

// convertBleveResults decodes stored entries from search hits.
func convertBleveResults(results *bleve.SearchResult) []Hit {
	hits := make([]Hit, 0, len(results.Hits))

	for _, hit := range results.Hits {
		raw, _ := hit.Fields["entry"].(string)
		if raw == "" {
			slog.Warn("search hit without stored entry", "id", hit.ID)
			continue
		}

		var e activity.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("failed to decode stored entry", "id", hit.ID, "error", err)
			continue
		}

		hits = append(hits, Hit{Entry: &e, Score: hit.Score})
	}

	return hits
}

package search

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/khanglvm/monitome/internal/activity"
)

// Index stores activity entries keyed by screenshot id.
type Index struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
	indexPath  string
}

// NewMemIndex creates an index with in-memory storage, used in tests.
func NewMemIndex() (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Index{bleveIndex: index}, nil
}

// NewIndexWithPath opens or creates an index with persistent disk storage.
func NewIndexWithPath(indexPath string) (*Index, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	// Open or create index with Scorch backend
	index, err := bleve.NewUsing(indexPath, buildIndexMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		// If index exists, open it
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open/create index: %w", err)
		}
	}

	return &Index{
		bleveIndex: index,
		indexPath:  indexPath,
	}, nil
}

// buildIndexMapping creates the Bleve index mapping.
//
// Entries are flattened into top-level fields: free text is analyzed,
// filter fields (date, tags, app) use the keyword analyzer, and the full
// entry is stored as JSON for retrieval.
func buildIndexMapping() mapping.IndexMapping {
	entryMapping := bleve.NewDocumentMapping()

	for _, field := range []string{"activity", "summary", "window_title", "page_title", "media_title", "current_file", "command", "project", "url"} {
		entryMapping.AddFieldMappingsAt(field, bleve.NewTextFieldMapping())
	}

	for _, field := range []string{"date", "tags", "app", "app_category", "domain", "language", "platform", "cwd"} {
		entryMapping.AddFieldMappingsAt(field, bleve.NewKeywordFieldMapping())
	}

	entryMapping.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())

	// Entry: stored but not indexed (for retrieval)
	entryField := bleve.NewTextFieldMapping()
	entryField.Index = false
	entryField.IncludeInAll = false
	entryMapping.AddFieldMappingsAt("entry", entryField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", entryMapping)

	return indexMapping
}

// Put writes e, replacing any entry with the same screenshot id.
func (i *Index) Put(e *activity.Entry) error {
	if e == nil || e.ScreenshotID == "" {
		return fmt.Errorf("entry screenshot id is required")
	}

	doc, err := toDocument(e)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bleveIndex.Index(e.ScreenshotID, doc); err != nil {
		return fmt.Errorf("failed to index entry %s: %w", e.ScreenshotID, err)
	}
	return nil
}

// Has reports whether an entry exists for the screenshot id.
func (i *Index) Has(id string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	doc, err := i.bleveIndex.Document(id)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return doc != nil, nil
}

// Get returns the entry for the screenshot id, or nil when absent.
func (i *Index) Get(id string) (*activity.Entry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = []string{"entry"}

	res, err := i.bleveIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	hits := convertBleveResults(res)
	if len(hits) == 0 {
		return nil, fmt.Errorf("entry %s has no stored document", id)
	}
	return hits[0].Entry, nil
}

// Delete removes the entry for the screenshot id.
func (i *Index) Delete(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bleveIndex.Delete(id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// Count returns the total number of indexed entries.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}

	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}

	return nil
}

// toDocument flattens an entry into the indexed field layout.
func toDocument(e *activity.Entry) (map[string]interface{}, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}

	doc := map[string]interface{}{
		"created_at": e.CapturedAt,
		"date":       e.Date,
		"tags":       e.Tags,
		"activity":   e.Activity,
		"summary":    e.Summary,
		"entry":      string(raw),
	}

	set := func(field, value string) {
		if value != "" {
			doc[field] = value
		}
	}

	if e.App != nil {
		set("app", strings.ToLower(e.App.Name))
		set("app_category", strings.ToLower(e.App.Category))
		set("window_title", e.App.WindowTitle)
	}
	if e.Browser != nil {
		set("url", e.Browser.URL)
		set("domain", strings.ToLower(e.Browser.Domain))
		set("page_title", e.Browser.PageTitle)
	}
	if e.Media != nil {
		set("platform", strings.ToLower(e.Media.Platform))
		set("media_title", e.Media.Title)
	}
	if e.IDE != nil {
		set("current_file", e.IDE.CurrentFile)
		set("language", strings.ToLower(e.IDE.Language))
		set("project", e.IDE.Project)
	}
	if e.Terminal != nil {
		set("cwd", e.Terminal.WorkingDirectory)
		set("command", e.Terminal.LastCommand)
	}

	return doc, nil
}

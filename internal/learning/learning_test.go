package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/khanglvm/monitome/internal/storage"
)

type mockStore struct {
	mu       sync.Mutex
	searches []storage.SearchRecord
	rules    []storage.LearnedRule
	loads    int
	failNext error
}

func (m *mockStore) RecordSearch(s storage.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, s)
	return nil
}

func (m *mockStore) AppendRule(ctx context.Context, text string) (*storage.LearnedRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}
	rule := storage.LearnedRule{ID: int64(len(m.rules) + 1), Text: text, CreatedAt: time.Now()}
	m.rules = append(m.rules, rule)
	return &rule, nil
}

func (m *mockStore) Rules(ctx context.Context) ([]storage.LearnedRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	out := make([]storage.LearnedRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *mockStore) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searches)
}

func TestTracker_Track(t *testing.T) {
	store := &mockStore{}
	tracker := NewTracker(store, nil)
	defer tracker.Stop()

	tracker.Track(NewSearchEvent("github pull request", 3))

	deadline := time.Now().Add(2 * time.Second)
	for store.searchCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if store.searchCount() != 1 {
		t.Fatalf("expected 1 recorded search, got %d", store.searchCount())
	}
	rec := store.searches[0]
	if rec.QueryHash != storage.HashQuery("github pull request") {
		t.Error("query must be stored hashed")
	}
	if rec.ResultsCount != 3 || rec.SearchID == "" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestTracker_StopFlushes(t *testing.T) {
	store := &mockStore{}
	tracker := NewTracker(store, nil)

	for i := 0; i < 25; i++ {
		tracker.Track(NewSearchEvent("query", i))
	}
	tracker.Stop()

	if n := store.searchCount(); n != 25 {
		t.Errorf("expected 25 recorded searches after Stop, got %d", n)
	}

	// Tracking after Stop is a no-op and must not panic.
	tracker.Track(NewSearchEvent("late", 0))
	tracker.Stop()
}

func TestNewSearchEvent_UniqueIDs(t *testing.T) {
	a := NewSearchEvent("q", 1)
	b := NewSearchEvent("q", 1)
	if a.SearchID == b.SearchID {
		t.Error("expected unique search ids")
	}
	if a.QueryHash != b.QueryHash {
		t.Error("same query should hash identically")
	}
}

func TestRulebook_LearnAndText(t *testing.T) {
	store := &mockStore{rules: []storage.LearnedRule{{ID: 1, Text: "Ghostty is a terminal"}}}
	book := NewRulebook(store)
	ctx := context.Background()

	before, err := book.Text(ctx)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if before != "- Ghostty is a terminal\n" {
		t.Errorf("unexpected text %q", before)
	}

	if _, err := book.Learn(ctx, "Linear is project management"); err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	after, _ := book.Text(ctx)
	if after != "- Ghostty is a terminal\n- Linear is project management\n" {
		t.Errorf("unexpected text %q", after)
	}

	// Earlier snapshots are plain strings and stay unchanged.
	if before != "- Ghostty is a terminal\n" {
		t.Error("snapshot was rewritten")
	}

	if store.loads != 1 {
		t.Errorf("expected rules loaded once, got %d", store.loads)
	}
}

func TestRulebook_EmptyText(t *testing.T) {
	book := NewRulebook(&mockStore{})
	text, err := book.Text(context.Background())
	if err != nil || text != "" {
		t.Errorf("expected empty text, got %q %v", text, err)
	}
}

func TestRulebook_LearnFailureKeepsRules(t *testing.T) {
	store := &mockStore{failNext: errors.New("disk full")}
	book := NewRulebook(store)

	if _, err := book.Learn(context.Background(), "rule"); err == nil {
		t.Fatal("expected error")
	}
	rules, _ := book.Rules(context.Background())
	if len(rules) != 0 {
		t.Errorf("failed learn must not add a rule, got %d", len(rules))
	}
}

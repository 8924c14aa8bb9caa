package learning

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/khanglvm/monitome/internal/storage"
)

// RuleStore persists learned rules.
type RuleStore interface {
	AppendRule(ctx context.Context, text string) (*storage.LearnedRule, error)
	Rules(ctx context.Context) ([]storage.LearnedRule, error)
}

// Rulebook is the append-only set of corrections sent with every
// extraction request.
type Rulebook struct {
	store RuleStore

	mu     sync.Mutex
	rules  []storage.LearnedRule
	loaded bool
}

// NewRulebook creates a rulebook backed by store.
func NewRulebook(store RuleStore) *Rulebook {
	return &Rulebook{store: store}
}

// Learn appends a rule. Requests already holding a snapshot are unaffected.
func (r *Rulebook) Learn(ctx context.Context, text string) (*storage.LearnedRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(ctx); err != nil {
		return nil, err
	}

	rule, err := r.store.AppendRule(ctx, text)
	if err != nil {
		return nil, err
	}
	r.rules = append(r.rules, *rule)
	return rule, nil
}

// Rules returns a copy of all learned rules, oldest first.
func (r *Rulebook) Rules(ctx context.Context) ([]storage.LearnedRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(ctx); err != nil {
		return nil, err
	}
	out := make([]storage.LearnedRule, len(r.rules))
	copy(out, r.rules)
	return out, nil
}

// Text renders the current rules as a snapshot for one request.
// It is empty when nothing has been learned yet.
func (r *Rulebook) Text(ctx context.Context) (string, error) {
	rules, err := r.Rules(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, rule := range rules {
		b.WriteString("- ")
		b.WriteString(rule.Text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (r *Rulebook) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	rules, err := r.store.Rules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load learned rules: %w", err)
	}
	r.rules = rules
	r.loaded = true
	return nil
}

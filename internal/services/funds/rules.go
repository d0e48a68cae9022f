// Package funds holds the fund-rule storage and the daily distribution
// engine that routes a share of revenue into fund wallets.
package funds

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// DefaultRules is the compiled-in rule set used until an administrator
// edits the rules through the settings flow.
func DefaultRules() []domain.FundRule {
	return []domain.FundRule{
		{Source: "Сбербанк", Destination: "Фонд Развития", Percent: decimal.NewFromInt(10)},
		{Source: "Сбербанк", Destination: "Фонд Мастер", Percent: decimal.NewFromInt(10)},
		{Source: "Сбербанк", Destination: "Фонд Налоги", Percent: decimal.NewFromInt(5)},
	}
}

// RuleStore persists fund rules as a small JSON document: read once at
// startup, rewritten wholesale on every edit. A single administrative
// editor is assumed; the mutex guards memory safety only.
type RuleStore struct {
	path string
	lg   *zap.Logger

	mu    sync.Mutex
	rules []domain.FundRule
}

// NewRuleStore loads rules from path. A missing file is not an error: the
// store starts with the default rule set and creates the file on the
// first save.
func NewRuleStore(path string, lg *zap.Logger) (*RuleStore, error) {
	s := &RuleStore{path: path, lg: lg}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		lg.Info("fund rules file not found, using defaults", zap.String("path", path))
		s.rules = DefaultRules()
		return s, nil
	case err != nil:
		return nil, errors.Wrap(err, "read fund rules")
	}
	var rules []domain.FundRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.Wrapf(err, "parse fund rules %s", path)
	}
	s.rules = rules
	return s, nil
}

// Rules returns a copy of the current rule list.
func (s *RuleStore) Rules() []domain.FundRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FundRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Active returns only the rules that participate in distribution.
func (s *RuleStore) Active() []domain.FundRule {
	var active []domain.FundRule
	for _, r := range s.Rules() {
		if r.Active() {
			active = append(active, r)
		}
	}
	return active
}

// Replace swaps the whole rule list and persists it.
func (s *RuleStore) Replace(rules []domain.FundRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
	return s.save()
}

// Add appends a rule and persists the list.
func (s *RuleStore) Add(rule domain.FundRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
	return s.save()
}

// Update replaces the rule at idx and persists the list.
func (s *RuleStore) Update(idx int, rule domain.FundRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.rules) {
		return errors.Errorf("fund rule index %d out of range", idx)
	}
	s.rules[idx] = rule
	return s.save()
}

// Delete removes the rule at idx and persists the list.
func (s *RuleStore) Delete(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.rules) {
		return errors.Errorf("fund rule index %d out of range", idx)
	}
	s.rules = append(s.rules[:idx], s.rules[idx+1:]...)
	return s.save()
}

func (s *RuleStore) save() error {
	data, err := json.MarshalIndent(s.rules, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode fund rules")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create fund rules dir")
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write fund rules")
	}
	return nil
}

package categorization

import (
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
)

// userRuleBoost lifts every user rule above every shared rule.
const userRuleBoost = 1000

// MatchResult represents a single rule match with its associated metadata
type MatchResult struct {
	Pattern    string    // The rule pattern as stored
	CategoryID uuid.UUID // The category to assign
	RuleID     uuid.UUID
	Priority   int  // Effective priority, user rules boosted
	IsUserRule bool // False for rules shared by every user
}

// Engine matches descriptions against category rules using the Aho-Corasick
// algorithm, so every rule is tested in a single pass over the text.
// Patterns and descriptions are compared folded: lower case, no accents.
type Engine struct {
	matcher  *ahocorasick.Matcher
	patterns []string        // Unique folded patterns in the same order as matcher
	metadata [][]MatchResult // Rules sharing each pattern
	mu       sync.RWMutex
}

// NewEngine creates an engine from rules.
func NewEngine(rules []repository.CategoryRule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build replaces the engine's rules. Rules with the same folded pattern are
// grouped and the highest priority one wins at match time.
func (e *Engine) Build(rules []repository.CategoryRule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	patternToIndex := make(map[string]int, len(rules))
	patterns := make([]string, 0, len(rules))
	metadata := make([][]MatchResult, 0, len(rules))

	for _, rule := range rules {
		// Rules may carry SQL LIKE wildcards from older exports.
		folded := normalizer.Fold(trimWildcards(rule.Pattern))
		if folded == "" {
			continue
		}

		result := MatchResult{
			Pattern:    rule.Pattern,
			CategoryID: rule.CategoryID,
			RuleID:     rule.ID,
			Priority:   rule.Priority,
			IsUserRule: rule.UserID != nil,
		}
		if result.IsUserRule {
			result.Priority += userRuleBoost
		}

		if idx, exists := patternToIndex[folded]; exists {
			metadata[idx] = append(metadata[idx], result)
			continue
		}
		patternToIndex[folded] = len(patterns)
		patterns = append(patterns, folded)
		metadata = append(metadata, []MatchResult{result})
	}

	e.patterns = patterns
	e.metadata = metadata
	e.matcher = nil
	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(patterns)
	}
}

// Match returns the highest priority rule found in description, or nil.
// Ties go to the longer pattern, then to the rule loaded first.
func (e *Engine) Match(description string) *MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return nil
	}

	var (
		best    *MatchResult
		bestLen int
	)
	for _, idx := range e.matcher.Match([]byte(normalizer.Fold(description))) {
		if idx < 0 || idx >= len(e.metadata) {
			continue
		}
		for i := range e.metadata[idx] {
			match := e.metadata[idx][i]
			if best == nil || match.Priority > best.Priority ||
				(match.Priority == best.Priority && len(e.patterns[idx]) > bestLen) {
				best = &match
				bestLen = len(e.patterns[idx])
			}
		}
	}
	return best
}

// PatternCount returns the number of distinct patterns loaded in the engine.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

func trimWildcards(s string) string {
	for len(s) > 0 && (s[0] == '%' || s[0] == '*') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '%' || s[len(s)-1] == '*') {
		s = s[:len(s)-1]
	}
	return s
}

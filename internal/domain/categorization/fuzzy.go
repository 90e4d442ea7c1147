package categorization

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
)

// DefaultFuzzyThreshold is the minimum score for a category hint to resolve
// to a category name it does not spell exactly.
const DefaultFuzzyThreshold = 80

// FuzzyMatchResult represents a fuzzy match with its similarity score
type FuzzyMatchResult struct {
	Name       string // The category name that matched
	CategoryID uuid.UUID
	Score      int // Similarity score (higher = better match, max 100)
	Distance   int // Levenshtein distance (lower = closer match)
}

// NameMatcher resolves free-text category hints, as found in statement
// category columns, to known category names. It catches spelling variations
// like "Alimentacao" vs "Alimentação" or "Restaurante" vs "Restaurantes".
type NameMatcher struct {
	names []fuzzyName
}

type fuzzyName struct {
	folded     string
	name       string
	categoryID uuid.UUID
}

// NewNameMatcher creates a matcher over categories. Earlier categories win
// ties, so list the user's own categories before shared ones.
func NewNameMatcher(categories []repository.Category) *NameMatcher {
	nm := &NameMatcher{names: make([]fuzzyName, 0, len(categories))}
	for _, c := range categories {
		folded := normalizer.Fold(c.Name)
		if folded == "" {
			continue
		}
		nm.names = append(nm.names, fuzzyName{folded: folded, name: c.Name, categoryID: c.ID})
	}
	return nm
}

// Match finds the best category for hint, or nil when no name reaches threshold.
func (nm *NameMatcher) Match(hint string, threshold int) *FuzzyMatchResult {
	folded := normalizer.Fold(hint)
	if folded == "" {
		return nil
	}

	var best *FuzzyMatchResult
	for _, n := range nm.names {
		score := fuzzyScore(folded, n.folded)
		if score < threshold || (best != nil && score <= best.Score) {
			continue
		}
		best = &FuzzyMatchResult{
			Name:       n.name,
			CategoryID: n.categoryID,
			Score:      score,
			Distance:   fuzzy.LevenshteinDistance(folded, n.folded),
		}
	}
	return best
}

// fuzzyScore calculates a similarity score between two folded strings (0-100)
// from containment, Levenshtein distance and subsequence ranking.
func fuzzyScore(s1, s2 string) int {
	if s1 == "" || s2 == "" {
		return 0
	}
	if s1 == s2 {
		return 100
	}

	// One name inside the other ("mercado" in "supermercado")
	if strings.Contains(s1, s2) {
		return 75 + (20 * len(s2) / len(s1))
	}
	if strings.Contains(s2, s1) {
		return 75 + (20 * len(s1) / len(s2))
	}

	distance := fuzzy.LevenshteinDistance(s1, s2)
	maxLen := max(len([]rune(s1)), len([]rune(s2)))
	levenshteinScore := 100 * (maxLen - distance) / maxLen

	// Subsequence match of the shorter string inside the longer one
	short, long := s1, s2
	if len(short) > len(long) {
		short, long = long, short
	}
	subsequenceScore := 0
	if rank := fuzzy.RankMatch(short, long); rank >= 0 && rank < len(long) {
		subsequenceScore = 60 - (rank * 40 / len(long))
	}

	return max(levenshteinScore, subsequenceScore)
}

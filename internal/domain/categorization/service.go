// Package categorization assigns categories to imported transactions from
// the statement's own category column and from user-defined description rules.
package categorization

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/ledger-core/internal/domain/import/normalizer"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"
)

// Service builds per-user category resolvers.
type Service struct {
	repo      repository.CategoryRepository
	logger    *slog.Logger
	threshold int
}

// NewService creates a new categorization service
func NewService(repo repository.CategoryRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    logger,
		threshold: DefaultFuzzyThreshold,
	}
}

// Resolver loads the user's categories and rules into a snapshot used for
// one import. It is safe for concurrent use.
func (s *Service) Resolver(ctx context.Context, userID uuid.UUID) (*Resolver, error) {
	categories, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	rules, err := s.repo.ListCategoryRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category rules: %w", err)
	}

	r := NewResolver(categories, rules)
	r.threshold = s.threshold

	s.logger.Debug("category resolver built",
		"user_id", userID,
		"categories", len(categories),
		"rules", r.engine.PatternCount(),
	)
	return r, nil
}

// Resolver maps a row's category hint and description to a category id.
type Resolver struct {
	byName    map[string]uuid.UUID
	names     *NameMatcher
	engine    *Engine
	threshold int
}

// NewResolver builds a resolver from categories, the user's own listed
// first, and rules.
func NewResolver(categories []repository.Category, rules []repository.CategoryRule) *Resolver {
	byName := make(map[string]uuid.UUID, len(categories))
	for _, c := range categories {
		key := normalizer.Fold(c.Name)
		if _, taken := byName[key]; !taken && key != "" {
			byName[key] = c.ID
		}
	}
	return &Resolver{
		byName:    byName,
		names:     NewNameMatcher(categories),
		engine:    NewEngine(rules),
		threshold: DefaultFuzzyThreshold,
	}
}

// Resolve returns the category for a row, or nil. The hint is tried by exact
// folded name, then fuzzily; the description is then matched against rules.
func (r *Resolver) Resolve(hint, description string) *uuid.UUID {
	if hint != "" {
		if id, ok := r.byName[normalizer.Fold(hint)]; ok {
			return &id
		}
		if m := r.names.Match(hint, r.threshold); m != nil {
			id := m.CategoryID
			return &id
		}
	}
	if m := r.engine.Match(description); m != nil {
		id := m.CategoryID
		return &id
	}
	return nil
}

package ecl

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 10000
)

// Page is one page of matching concept ids in stable sctid order.
type Page struct {
	ConceptIDs []string `json:"conceptIds"`
	Total      int      `json:"total"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
}

// ResultCache stores evaluated pages. Keys embed the branch head timepoint,
// so entries go stale naturally when the branch moves.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Page, bool)
	Set(ctx context.Context, key string, page *Page)
}

// Service evaluates parsed expression constraints against the semantic index
// and the relationship store.
type Service struct {
	branches      vc.Registry
	concepts      components.ConceptRepo
	relationships components.RelationshipRepo
	queryConcepts components.QueryConceptRepo
	cache         ResultCache
	log           *logger.Logger
}

func NewService(
	branches vc.Registry,
	concepts components.ConceptRepo,
	relationships components.RelationshipRepo,
	queryConcepts components.QueryConceptRepo,
	cache ResultCache,
	baseLog *logger.Logger,
) *Service {
	return &Service{
		branches:      branches,
		concepts:      concepts,
		relationships: relationships,
		queryConcepts: queryConcepts,
		cache:         cache,
		log:           baseLog.With("service", "ECL"),
	}
}

// Execute parses and evaluates one constraint on the branch.
func (s *Service) Execute(ctx dbctx.Context, path, expression string, stated bool, offset, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	constraint, err := Parse(expression)
	if err != nil {
		return nil, err
	}

	branch, err := s.branches.Find(ctx, path)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("ecl:%s:%d:%t:%s:%d:%d", path, branch.HeadTS, stated, expression, offset, limit)
	if s.cache != nil {
		if page, ok := s.cache.Get(ctx.Ctx, cacheKey); ok {
			return page, nil
		}
	}

	criteria, err := s.branches.Criteria(ctx, path)
	if err != nil {
		return nil, err
	}

	ids, err := s.evaluate(ctx, criteria, stated, constraint)
	if err != nil {
		return nil, err
	}

	sortSCTIDs(ids)
	page := &Page{Total: len(ids), Offset: offset, Limit: limit}
	if offset < len(ids) {
		end := offset + limit
		if end > len(ids) {
			end = len(ids)
		}
		page.ConceptIDs = ids[offset:end]
	}
	if page.ConceptIDs == nil {
		page.ConceptIDs = []string{}
	}

	if s.cache != nil {
		s.cache.Set(ctx.Ctx, cacheKey, page)
	}
	s.log.Debug("ecl executed", "path", path, "ecl", expression, "total", page.Total)
	return page, nil
}

func (s *Service) evaluate(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, constraint *ExpressionConstraint) ([]string, error) {
	candidates, err := s.resolveSub(ctx, criteria, stated, constraint.Sub)
	if err != nil {
		return nil, err
	}
	if constraint.Refinement == nil {
		if candidates == nil {
			// Bare wildcard: every indexed concept.
			return s.queryConcepts.AllConceptIDs(ctx, criteria, stated)
		}
		return candidates, nil
	}
	if err := ctx.Ctx.Err(); err != nil {
		return nil, err
	}

	matching, err := s.refinementSources(ctx, criteria, stated, constraint.Refinement)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		// Wildcard focus: the refinement alone decides membership.
		return matching, nil
	}
	matchSet := make(map[string]bool, len(matching))
	for _, id := range matching {
		matchSet[id] = true
	}
	out := candidates[:0]
	for _, id := range candidates {
		if matchSet[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// resolveSub returns the concept ids selected by an operator+focus pair. A
// wildcard returns nil; the caller expands a bare wildcard to every indexed
// concept and skips the intersection under a refinement.
func (s *Service) resolveSub(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, sub *SubExpression) ([]string, error) {
	if sub.Wildcard {
		if sub.Op != Self {
			return nil, fmt.Errorf("operator %q on wildcard: %w", sub.Op, errors.ErrInvalidArgument)
		}
		return nil, nil
	}

	switch sub.Op {
	case Self:
		existing, err := s.concepts.ExistingIDs(ctx, criteria, []string{sub.FocusID})
		if err != nil {
			return nil, err
		}
		if !existing[sub.FocusID] {
			return []string{}, nil
		}
		return []string{sub.FocusID}, nil

	case Descendant, DescendantOrSelf:
		ids, err := s.queryConcepts.DescendantIDs(ctx, criteria, stated, sub.FocusID)
		if err != nil {
			return nil, err
		}
		if sub.Op == DescendantOrSelf {
			ids = append(ids, sub.FocusID)
		}
		return dedup(ids), nil

	case Ancestor, AncestorOrSelf:
		rows, err := s.queryConcepts.FindByConceptIDs(ctx, criteria, stated, []string{sub.FocusID})
		if err != nil {
			return nil, err
		}
		var ids []string
		if len(rows) > 0 {
			ids = rows[0].AncestorIDs()
		}
		if sub.Op == AncestorOrSelf {
			ids = append(ids, sub.FocusID)
		}
		return dedup(ids), nil
	}
	return nil, fmt.Errorf("operator %q: %w", sub.Op, errors.ErrUnsupported)
}

// refinementSources finds concepts carrying an active relationship whose type
// and destination satisfy the refinement.
func (s *Service) refinementSources(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, refinement *Refinement) ([]string, error) {
	characteristic := domain.InferredRelationship
	if stated {
		characteristic = domain.StatedRelationship
	}

	typeIDs, err := s.resolveSub(ctx, criteria, stated, refinement.Attribute)
	if err != nil {
		return nil, err
	}
	var destinationIDs []string
	if !refinement.Value.Wildcard {
		destinationIDs, err = s.resolveSub(ctx, criteria, stated, refinement.Value)
		if err != nil {
			return nil, err
		}
		if len(destinationIDs) == 0 {
			return []string{}, nil
		}
	}

	if typeIDs == nil {
		// Wildcard attribute matches any relationship type.
		sources, err := s.relationships.FindActiveSourceIDs(ctx, criteria, characteristic, "", destinationIDs)
		if err != nil {
			return nil, err
		}
		return sources, nil
	}
	if len(typeIDs) == 0 {
		return []string{}, nil
	}

	seen := map[string]bool{}
	var out []string
	for _, typeID := range typeIDs {
		if err := ctx.Ctx.Err(); err != nil {
			return nil, err
		}
		sources, err := s.relationships.FindActiveSourceIDs(ctx, criteria, characteristic, typeID, destinationIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range sources {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// sortSCTIDs orders numerically: shorter ids first, then lexicographic.
func sortSCTIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
}

package components

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

type QueryConceptRepo interface {
	FindByConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptIDs []string) ([]*domain.QueryConcept, error)
	// FindWithAncestor returns index rows whose ancestor set contains the
	// concept, the descendants of the concept in the given form.
	FindWithAncestor(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptID string) ([]*domain.QueryConcept, error)
	DescendantIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptID string) ([]string, error)
	AllConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool) ([]string, error)
	SaveBatch(ctx dbctx.Context, commit *vc.Commit, rows []*domain.QueryConcept) error
}

type queryConceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueryConceptRepo(db *gorm.DB, baseLog *logger.Logger) QueryConceptRepo {
	return &queryConceptRepo{db: db, log: baseLog.With("repo", "QueryConcept")}
}

func (r *queryConceptRepo) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return r.db.WithContext(ctx.Ctx)
}

func (r *queryConceptRepo) FindByConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptIDs []string) ([]*domain.QueryConcept, error) {
	var out []*domain.QueryConcept
	for _, chunk := range partition(conceptIDs, clauseLimit) {
		var batch []*domain.QueryConcept
		err := r.tx(ctx).
			Scopes(criteria.Scope("query_concept"), excludeTombstones).
			Where("query_concept.stated = ? AND query_concept.concept_id IN ?", stated, chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find query concepts: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *queryConceptRepo) FindWithAncestor(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptID string) ([]*domain.QueryConcept, error) {
	var out []*domain.QueryConcept
	q := r.tx(ctx).
		Scopes(criteria.Scope("query_concept"), excludeTombstones).
		Where("query_concept.stated = ?", stated)
	q = whereJSONContains(q, "query_concept.ancestors", conceptID)
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find query concepts with ancestor %s: %w", conceptID, err)
	}
	return out, nil
}

func (r *queryConceptRepo) DescendantIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptID string) ([]string, error) {
	var ids []string
	q := r.tx(ctx).Table("query_concept").
		Select("query_concept.concept_id").
		Scopes(criteria.Scope("query_concept"), excludeTombstones).
		Where("query_concept.stated = ?", stated)
	q = whereJSONContains(q, "query_concept.ancestors", conceptID)
	if err := q.Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("find descendants of %s: %w", conceptID, err)
	}
	return ids, nil
}

func (r *queryConceptRepo) AllConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool) ([]string, error) {
	var ids []string
	err := r.tx(ctx).Table("query_concept").
		Select("query_concept.concept_id").
		Scopes(criteria.Scope("query_concept"), excludeTombstones).
		Where("query_concept.stated = ?", stated).
		Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("list indexed concepts: %w", err)
	}
	return ids, nil
}

// SaveBatch saves stated and inferred rows separately so that a concept's row
// in one form never supersedes its row in the other.
func (r *queryConceptRepo) SaveBatch(ctx dbctx.Context, commit *vc.Commit, rows []*domain.QueryConcept) error {
	byForm := map[bool][]*domain.QueryConcept{}
	for _, row := range rows {
		byForm[row.Stated] = append(byForm[row.Stated], row)
	}
	for stated, formRows := range byForm {
		statedValue := stated
		err := SaveBatch(ctx, r.tx(ctx), commit, formRows, func(db *gorm.DB) *gorm.DB {
			return db.Where("query_concept.stated = ?", statedValue)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// whereJSONContains matches a JSON array column containing the given value.
// Postgres uses jsonb containment; sqlite, used by tests, walks the array.
func whereJSONContains(db *gorm.DB, column, value string) *gorm.DB {
	switch db.Dialector.Name() {
	case "sqlite":
		return db.Where("EXISTS (SELECT 1 FROM json_each("+column+") WHERE json_each.value = ?)", value)
	default:
		return db.Where(column+" @> ?::jsonb", `["`+value+`"]`)
	}
}

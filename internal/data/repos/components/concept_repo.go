package components

import (
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

type ConceptRepo interface {
	Find(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptID string) (*domain.Concept, error)
	FindByIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) ([]*domain.Concept, error)
	ExistingIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) (map[string]bool, error)
	SaveBatch(ctx dbctx.Context, commit *vc.Commit, concepts []*domain.Concept) error
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "Concept")}
}

func (r *conceptRepo) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return r.db.WithContext(ctx.Ctx)
}

func (r *conceptRepo) Find(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptID string) (*domain.Concept, error) {
	var c domain.Concept
	err := r.tx(ctx).
		Scopes(criteria.Scope("concept"), excludeTombstones).
		Where("concept.concept_id = ?", conceptID).
		First(&c).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("concept %s on %s: %w", conceptID, criteria.BranchPath(), errors.ErrNotFound)
		}
		return nil, fmt.Errorf("find concept %s: %w", conceptID, err)
	}
	return &c, nil
}

func (r *conceptRepo) FindByIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) ([]*domain.Concept, error) {
	var out []*domain.Concept
	for _, chunk := range partition(conceptIDs, clauseLimit) {
		var batch []*domain.Concept
		err := r.tx(ctx).
			Scopes(criteria.Scope("concept"), excludeTombstones).
			Where("concept.concept_id IN ?", chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find concepts: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *conceptRepo) ExistingIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) (map[string]bool, error) {
	existing := map[string]bool{}
	for _, chunk := range partition(conceptIDs, clauseLimit) {
		var ids []string
		err := r.tx(ctx).Table("concept").
			Select("concept.concept_id").
			Scopes(criteria.Scope("concept"), excludeTombstones).
			Where("concept.concept_id IN ?", chunk).
			Scan(&ids).Error
		if err != nil {
			return nil, fmt.Errorf("check concept ids: %w", err)
		}
		for _, id := range ids {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *conceptRepo) SaveBatch(ctx dbctx.Context, commit *vc.Commit, concepts []*domain.Concept) error {
	return SaveBatch(ctx, r.tx(ctx), commit, concepts)
}

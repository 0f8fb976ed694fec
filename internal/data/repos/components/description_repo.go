package components

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

type DescriptionRepo interface {
	FindByIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, descriptionIDs []string) ([]*domain.Description, error)
	FindByConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) ([]*domain.Description, error)
	SaveBatch(ctx dbctx.Context, commit *vc.Commit, descriptions []*domain.Description) error
}

type descriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDescriptionRepo(db *gorm.DB, baseLog *logger.Logger) DescriptionRepo {
	return &descriptionRepo{db: db, log: baseLog.With("repo", "Description")}
}

func (r *descriptionRepo) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return r.db.WithContext(ctx.Ctx)
}

func (r *descriptionRepo) FindByIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, descriptionIDs []string) ([]*domain.Description, error) {
	var out []*domain.Description
	for _, chunk := range partition(descriptionIDs, clauseLimit) {
		var batch []*domain.Description
		err := r.tx(ctx).
			Scopes(criteria.Scope("description"), excludeTombstones).
			Where("description.description_id IN ?", chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find descriptions: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *descriptionRepo) FindByConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) ([]*domain.Description, error) {
	var out []*domain.Description
	for _, chunk := range partition(conceptIDs, clauseLimit) {
		var batch []*domain.Description
		err := r.tx(ctx).
			Scopes(criteria.Scope("description"), excludeTombstones).
			Where("description.concept_id IN ?", chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find descriptions by concept: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *descriptionRepo) SaveBatch(ctx dbctx.Context, commit *vc.Commit, descriptions []*domain.Description) error {
	return SaveBatch(ctx, r.tx(ctx), commit, descriptions)
}

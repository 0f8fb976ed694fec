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

// MemberFilter narrows member lookups. Zero fields are not applied.
type MemberFilter struct {
	RefsetID               string
	RefsetIDs              []string
	ReferencedComponentIDs []string
	Active                 *bool
}

type MemberRepo interface {
	Find(ctx dbctx.Context, criteria *vc.BranchCriteria, memberID string) (*domain.ReferenceSetMember, error)
	FindByFilter(ctx dbctx.Context, criteria *vc.BranchCriteria, filter MemberFilter) ([]*domain.ReferenceSetMember, error)
	FindByConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) ([]*domain.ReferenceSetMember, error)
	SaveBatch(ctx dbctx.Context, commit *vc.Commit, members []*domain.ReferenceSetMember) error
}

type memberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemberRepo(db *gorm.DB, baseLog *logger.Logger) MemberRepo {
	return &memberRepo{db: db, log: baseLog.With("repo", "ReferenceSetMember")}
}

func (r *memberRepo) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return r.db.WithContext(ctx.Ctx)
}

func (r *memberRepo) Find(ctx dbctx.Context, criteria *vc.BranchCriteria, memberID string) (*domain.ReferenceSetMember, error) {
	var m domain.ReferenceSetMember
	err := r.tx(ctx).
		Scopes(criteria.Scope("reference_set_member"), excludeTombstones).
		Where("reference_set_member.member_id = ?", memberID).
		First(&m).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("member %s on %s: %w", memberID, criteria.BranchPath(), errors.ErrNotFound)
		}
		return nil, fmt.Errorf("find member %s: %w", memberID, err)
	}
	return &m, nil
}

func (r *memberRepo) FindByFilter(ctx dbctx.Context, criteria *vc.BranchCriteria, filter MemberFilter) ([]*domain.ReferenceSetMember, error) {
	chunks := partition(filter.ReferencedComponentIDs, clauseLimit)
	if chunks == nil {
		chunks = [][]string{nil}
	}
	var out []*domain.ReferenceSetMember
	for _, chunk := range chunks {
		q := r.tx(ctx).
			Scopes(criteria.Scope("reference_set_member"), excludeTombstones)
		if filter.RefsetID != "" {
			q = q.Where("reference_set_member.refset_id = ?", filter.RefsetID)
		}
		if len(filter.RefsetIDs) > 0 {
			q = q.Where("reference_set_member.refset_id IN ?", filter.RefsetIDs)
		}
		if filter.Active != nil {
			q = q.Where("reference_set_member.active = ?", *filter.Active)
		}
		if chunk != nil {
			q = q.Where("reference_set_member.referenced_component_id IN ?", chunk)
		}
		var batch []*domain.ReferenceSetMember
		if err := q.Find(&batch).Error; err != nil {
			return nil, fmt.Errorf("find members: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *memberRepo) FindByConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) ([]*domain.ReferenceSetMember, error) {
	var out []*domain.ReferenceSetMember
	for _, chunk := range partition(conceptIDs, clauseLimit) {
		var batch []*domain.ReferenceSetMember
		err := r.tx(ctx).
			Scopes(criteria.Scope("reference_set_member"), excludeTombstones).
			Where("reference_set_member.concept_id IN ?", chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find members by concept: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *memberRepo) SaveBatch(ctx dbctx.Context, commit *vc.Commit, members []*domain.ReferenceSetMember) error {
	return SaveBatch(ctx, r.tx(ctx), commit, members)
}

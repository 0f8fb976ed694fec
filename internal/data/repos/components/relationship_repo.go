package components

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

type RelationshipRepo interface {
	FindByIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, relationshipIDs []string) ([]*domain.Relationship, error)
	FindBySourceIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, sourceIDs []string) ([]*domain.Relationship, error)
	// FindActiveByCharacteristic streams every active relationship of one
	// characteristic type, used for full index rebuilds.
	FindActiveByCharacteristic(ctx dbctx.Context, criteria *vc.BranchCriteria, characteristicTypeID string) ([]*domain.Relationship, error)
	// FindActiveSourceIDs resolves attribute refinements: sources that carry
	// an active relationship of the given type to any of the destinations.
	FindActiveSourceIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, characteristicTypeID, typeID string, destinationIDs []string) ([]string, error)
	SaveBatch(ctx dbctx.Context, commit *vc.Commit, relationships []*domain.Relationship) error
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{db: db, log: baseLog.With("repo", "Relationship")}
}

func (r *relationshipRepo) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return r.db.WithContext(ctx.Ctx)
}

func (r *relationshipRepo) FindByIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, relationshipIDs []string) ([]*domain.Relationship, error) {
	var out []*domain.Relationship
	for _, chunk := range partition(relationshipIDs, clauseLimit) {
		var batch []*domain.Relationship
		err := r.tx(ctx).
			Scopes(criteria.Scope("relationship"), excludeTombstones).
			Where("relationship.relationship_id IN ?", chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find relationships: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *relationshipRepo) FindBySourceIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, sourceIDs []string) ([]*domain.Relationship, error) {
	var out []*domain.Relationship
	for _, chunk := range partition(sourceIDs, clauseLimit) {
		var batch []*domain.Relationship
		err := r.tx(ctx).
			Scopes(criteria.Scope("relationship"), excludeTombstones).
			Where("relationship.source_id IN ?", chunk).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("find relationships by source: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *relationshipRepo) FindActiveByCharacteristic(ctx dbctx.Context, criteria *vc.BranchCriteria, characteristicTypeID string) ([]*domain.Relationship, error) {
	var out []*domain.Relationship
	err := r.tx(ctx).
		Scopes(criteria.Scope("relationship"), excludeTombstones).
		Where("relationship.active = ? AND relationship.characteristic_type_id = ?", true, characteristicTypeID).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find active relationships: %w", err)
	}
	return out, nil
}

func (r *relationshipRepo) FindActiveSourceIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, characteristicTypeID, typeID string, destinationIDs []string) ([]string, error) {
	sources := map[string]bool{}
	var out []string
	chunks := partition(destinationIDs, clauseLimit)
	if chunks == nil {
		// Wildcard destination.
		chunks = [][]string{nil}
	}
	for _, chunk := range chunks {
		var ids []string
		q := r.tx(ctx).Table("relationship").
			Select("DISTINCT relationship.source_id").
			Scopes(criteria.Scope("relationship"), excludeTombstones).
			Where("relationship.active = ? AND relationship.characteristic_type_id = ?", true, characteristicTypeID)
		if typeID != "" {
			q = q.Where("relationship.type_id = ?", typeID)
		}
		if chunk != nil {
			q = q.Where("relationship.destination_id IN ?", chunk)
		}
		if err := q.Scan(&ids).Error; err != nil {
			return nil, fmt.Errorf("find relationship sources: %w", err)
		}
		for _, id := range ids {
			if !sources[id] {
				sources[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (r *relationshipRepo) SaveBatch(ctx dbctx.Context, commit *vc.Commit, relationships []*domain.Relationship) error {
	return SaveBatch(ctx, r.tx(ctx), commit, relationships)
}

package components

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// clauseLimit caps the size of id lists in a single IN clause. Larger inputs
// are partitioned into successive queries.
const clauseLimit = 800

const insertBatchSize = 500

// Component is a versioned row type with a table of its own.
type Component interface {
	domain.SnomedComponent
	TableName() string
}

var idColumns = map[string]string{
	"concept":              "concept_id",
	"description":          "description_id",
	"relationship":         "relationship_id",
	"reference_set_member": "member_id",
	"query_concept":        "concept_id",
}

func partition(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

type versionRef struct {
	RowID       string `gorm:"column:row_id"`
	Path        string `gorm:"column:path"`
	ComponentID string `gorm:"column:component_id"`
}

func findVersionRefs(tx *gorm.DB, criteria *vc.BranchCriteria, table string, ids []string, scopes []func(*gorm.DB) *gorm.DB) (map[string]versionRef, error) {
	idColumn := idColumns[table]
	refs := map[string]versionRef{}
	for _, chunk := range partition(ids, clauseLimit) {
		var rows []versionRef
		err := tx.Table(table).
			Select(table+".row_id, "+table+".path, "+table+"."+idColumn+" AS component_id").
			Scopes(criteria.Scope(table)).
			Scopes(scopes...).
			Where(table+"."+idColumn+" IN ?", chunk).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("find versions in %s: %w", table, err)
		}
		for _, row := range rows {
			refs[row.ComponentID] = row
		}
	}
	return refs, nil
}

// SaveBatch writes changed, created and deleted components under the commit
// timepoint. A superseded version on the commit branch is end stamped; one on
// an ancestor branch is recorded in the commit's replaced set instead, and a
// tombstone row is written for deletions so the ancestor version stays
// shadowed after rebase pruning.
func SaveBatch[T Component](ctx dbctx.Context, tx *gorm.DB, commit *vc.Commit, items []T, scopes ...func(*gorm.DB) *gorm.DB) error {
	var dirty []T
	var ids []string
	for _, item := range items {
		env := item.Env()
		if env.Changed || env.Creating || env.Deleted {
			dirty = append(dirty, item)
			ids = append(ids, item.ID())
		}
	}
	if len(dirty) == 0 {
		return nil
	}
	table := dirty[0].TableName()
	db := tx.WithContext(ctx.Ctx)

	existing, err := findVersionRefs(db, commit.Criteria(), table, ids, scopes)
	if err != nil {
		return err
	}

	tp := commit.Timepoint()
	var endStamp []string
	var inserts []T
	for _, item := range dirty {
		env := item.Env()
		prev, hadPrev := existing[item.ID()]
		onAncestor := false
		if hadPrev {
			if prev.Path == commit.Path() {
				endStamp = append(endStamp, prev.RowID)
			} else {
				commit.AddVersionsReplaced(table, prev.RowID)
				onAncestor = true
			}
		}
		if env.Deleted {
			commit.AddEntitiesDeleted(item.ID())
			if !onAncestor {
				continue
			}
		}
		env.RowID = uuid.NewString()
		env.Path = commit.Path()
		env.StartTS = tp
		env.EndTS = nil
		env.Changed = false
		env.Creating = false
		inserts = append(inserts, item)
	}

	for _, chunk := range partition(endStamp, clauseLimit) {
		err := db.Table(table).Where("row_id IN ?", chunk).Update("end_ts", tp).Error
		if err != nil {
			return fmt.Errorf("end stamp %s: %w", table, err)
		}
	}
	if len(inserts) > 0 {
		if err := db.CreateInBatches(inserts, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert %s versions: %w", table, err)
		}
	}
	return nil
}

// excludeTombstones hides deleted marker rows from content reads.
func excludeTombstones(db *gorm.DB) *gorm.DB {
	return db.Where("deleted = ?", false)
}

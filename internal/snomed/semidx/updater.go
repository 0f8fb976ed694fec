package semidx

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/snomed/axioms"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// Updater maintains the per-branch transitive closure index in both forms.
// Registered as a commit listener it runs inside every commit, so index rows
// become visible atomically with the content that produced them.
type Updater struct {
	db            *gorm.DB
	relationships components.RelationshipRepo
	members       components.MemberRepo
	concepts      components.ConceptRepo
	queryConcepts components.QueryConceptRepo
	log           *logger.Logger
}

func NewUpdater(
	db *gorm.DB,
	relationships components.RelationshipRepo,
	members components.MemberRepo,
	concepts components.ConceptRepo,
	queryConcepts components.QueryConceptRepo,
	baseLog *logger.Logger,
) *Updater {
	return &Updater{
		db:            db,
		relationships: relationships,
		members:       members,
		concepts:      concepts,
		queryConcepts: queryConcepts,
		log:           baseLog.With("service", "SemanticIndex"),
	}
}

func (u *Updater) PreCommitCompletion(ctx dbctx.Context, commit *vc.Commit) error {
	for _, stated := range []bool{true, false} {
		dirty, err := u.dirtyConceptIDs(ctx, commit, stated)
		if err != nil {
			return err
		}
		if len(dirty) == 0 {
			continue
		}
		if err := u.updateForm(ctx, commit, stated, dirty); err != nil {
			return err
		}
	}
	return nil
}

// dirtyConceptIDs collects concepts whose defining content changed in this
// commit: rows started or ended at the commit timepoint. Rebase commits look
// at what the new base brings in from the parent instead.
func (u *Updater) dirtyConceptIDs(ctx dbctx.Context, commit *vc.Commit, stated bool) ([]string, error) {
	tx := u.tx(ctx)
	path := commit.Path()
	fromTS, toTS := commit.Timepoint(), commit.Timepoint()
	if commit.IsRebase() {
		// Content brought in from the parent between the old and new base.
		parent := commit.ParentBranch()
		if parent == nil {
			return nil, nil
		}
		path = parent.Path
		fromTS = commit.Branch().BaseTS + 1
		toTS = parent.HeadTS
	}

	set := map[string]bool{}
	characteristic := domain.InferredRelationship
	if stated {
		characteristic = domain.StatedRelationship
	}
	var sources []string
	err := tx.Raw("SELECT DISTINCT source_id FROM relationship WHERE path = ? AND characteristic_type_id = ? AND type_id = ?"+
		" AND ((start_ts BETWEEN ? AND ?) OR (end_ts BETWEEN ? AND ?))",
		path, characteristic, domain.ISA, fromTS, toTS, fromTS, toTS).Scan(&sources).Error
	if err != nil {
		return nil, fmt.Errorf("scan dirty relationships: %w", err)
	}
	for _, id := range sources {
		set[id] = true
	}

	if stated {
		var referenced []string
		err := tx.Raw("SELECT DISTINCT referenced_component_id FROM reference_set_member WHERE path = ? AND refset_id = ?"+
			" AND ((start_ts BETWEEN ? AND ?) OR (end_ts BETWEEN ? AND ?))",
			path, domain.OWLAxiomRefset, fromTS, toTS, fromTS, toTS).Scan(&referenced).Error
		if err != nil {
			return nil, fmt.Errorf("scan dirty axiom members: %w", err)
		}
		for _, id := range referenced {
			set[id] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

// updateForm recomputes closure rows for the dirty concepts and every indexed
// descendant of them in the given form.
func (u *Updater) updateForm(ctx dbctx.Context, commit *vc.Commit, stated bool, dirty []string) error {
	criteria := commit.Criteria()

	affected := map[string]bool{}
	for _, id := range dirty {
		affected[id] = true
		below, err := u.queryConcepts.FindWithAncestor(ctx, criteria, stated, id)
		if err != nil {
			return err
		}
		for _, row := range below {
			affected[row.ConceptID] = true
		}
	}
	affectedIDs := make([]string, 0, len(affected))
	for id := range affected {
		affectedIDs = append(affectedIDs, id)
	}

	parents, err := u.freshParents(ctx, criteria, stated, affectedIDs)
	if err != nil {
		return err
	}

	builder := newClosureBuilder(parents, func(conceptID string) ([]string, bool, error) {
		rows, err := u.queryConcepts.FindByConceptIDs(ctx, criteria, stated, []string{conceptID})
		if err != nil {
			return nil, false, err
		}
		if len(rows) == 0 {
			return nil, false, nil
		}
		return rows[0].AncestorIDs(), true, nil
	})

	existingRows, err := u.queryConcepts.FindByConceptIDs(ctx, criteria, stated, affectedIDs)
	if err != nil {
		return err
	}
	existingByID := map[string]*domain.QueryConcept{}
	for _, row := range existingRows {
		existingByID[row.ConceptID] = row
	}

	activeConcepts, err := u.concepts.ExistingIDs(ctx, criteria, affectedIDs)
	if err != nil {
		return err
	}

	var toSave []*domain.QueryConcept
	for _, conceptID := range affectedIDs {
		conceptParents := parents[conceptID]
		existing := existingByID[conceptID]

		if len(conceptParents) == 0 && !activeConcepts[conceptID] {
			if existing != nil {
				existing.MarkDeleted()
				toSave = append(toSave, existing)
			}
			continue
		}

		ancestors, err := builder.Ancestors(conceptID)
		if err != nil {
			return err
		}

		row := existing
		if row == nil {
			row = &domain.QueryConcept{ConceptID: conceptID, Stated: stated}
			row.Active = true
			row.Creating = true
		}
		previous := &domain.QueryConcept{ConceptID: conceptID, Stated: stated}
		if existing != nil {
			previous = existing
		}
		before := previous.AncestorIDs()
		beforeParents := previous.ParentIDs()
		row.SetParents(conceptParents)
		row.SetAncestors(ancestors)
		if existing != nil {
			if equalSorted(before, row.AncestorIDs()) && equalSorted(beforeParents, row.ParentIDs()) {
				continue
			}
			row.MarkChanged()
		}
		toSave = append(toSave, row)
	}

	if len(toSave) == 0 {
		return nil
	}
	u.log.Debug("semantic index updated", "path", commit.Path(), "stated", stated, "rows", len(toSave))
	return u.queryConcepts.SaveBatch(ctx, commit, toSave)
}

// freshParents reads the current active ISA parents of the given concepts in
// one form: stated from axioms and stated relationships, inferred from
// inferred relationships.
func (u *Updater) freshParents(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool, conceptIDs []string) (map[string][]string, error) {
	parents := map[string]map[string]bool{}
	for _, id := range conceptIDs {
		parents[id] = map[string]bool{}
	}
	add := func(source, destination string) {
		if set, tracked := parents[source]; tracked {
			set[destination] = true
		}
	}

	relationships, err := u.relationships.FindBySourceIDs(ctx, criteria, conceptIDs)
	if err != nil {
		return nil, err
	}
	wantCharacteristic := domain.InferredRelationship
	if stated {
		wantCharacteristic = domain.StatedRelationship
	}
	for _, r := range relationships {
		if r.Active && r.TypeID == domain.ISA && r.CharacteristicTypeID == wantCharacteristic {
			add(r.SourceID, r.DestinationID)
		}
	}

	if stated {
		active := true
		owlMembers, err := u.members.FindByFilter(ctx, criteria, components.MemberFilter{
			RefsetID:               domain.OWLAxiomRefset,
			ReferencedComponentIDs: conceptIDs,
			Active:                 &active,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range owlMembers {
			axiom, gci, err := axioms.FromMember(m)
			if err != nil || axiom == nil || gci {
				continue
			}
			for _, r := range axiom.Relationships {
				if r.TypeID == domain.ISA {
					add(m.ReferencedComponentID, r.DestinationID)
				}
			}
		}
	}

	out := make(map[string][]string, len(parents))
	for id, set := range parents {
		list := make([]string, 0, len(set))
		for p := range set {
			list = append(list, p)
		}
		out[id] = sortStrings(list)
	}
	return out, nil
}

func (u *Updater) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return u.db.WithContext(ctx.Ctx)
}

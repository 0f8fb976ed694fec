package semidx

import (
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/snomed/axioms"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// Rebuilder recomputes the whole index for a branch from its component
// content, used after imports or when the incremental path is suspected to
// have drifted.
type Rebuilder struct {
	vcs     *vc.Service
	updater *Updater
}

func NewRebuilder(vcs *vc.Service, updater *Updater) *Rebuilder {
	return &Rebuilder{vcs: vcs, updater: updater}
}

// Rebuild recomputes both forms of the index in one commit. Existing rows
// that no longer match are replaced, rows for concepts without any remaining
// content are removed.
func (r *Rebuilder) Rebuild(ctx dbctx.Context, path string) error {
	commit, err := r.vcs.OpenCommit(ctx, path)
	if err != nil {
		return err
	}
	defer r.vcs.Close(ctx, commit)

	criteria := commit.Criteria()

	var statedRows, inferredRows []*domain.QueryConcept
	g, gctx := errgroup.WithContext(ctx.Ctx)
	g.Go(func() error {
		var err error
		statedRows, err = r.updater.rebuildForm(dbctx.Context{Ctx: gctx, Tx: ctx.Tx}, criteria, true)
		return err
	})
	g.Go(func() error {
		var err error
		inferredRows, err = r.updater.rebuildForm(dbctx.Context{Ctx: gctx, Tx: ctx.Tx}, criteria, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	toSave := append(statedRows, inferredRows...)
	if len(toSave) > 0 {
		if err := r.updater.queryConcepts.SaveBatch(ctx, commit, toSave); err != nil {
			return err
		}
	}
	if err := r.vcs.MarkSuccessful(ctx, commit); err != nil {
		return err
	}
	r.updater.log.Info("semantic index rebuilt", "path", path, "rows", len(toSave))
	return nil
}

// rebuildForm computes the complete closure of one form and diffs it against
// the indexed rows.
func (u *Updater) rebuildForm(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool) ([]*domain.QueryConcept, error) {
	parents, err := u.allParents(ctx, criteria, stated)
	if err != nil {
		return nil, err
	}

	// Roots appear only as destinations, they still get an index row when
	// the concept itself is active.
	destinations := map[string]bool{}
	for _, list := range parents {
		for _, p := range list {
			if _, hasOwn := parents[p]; !hasOwn {
				destinations[p] = true
			}
		}
	}
	destinationIDs := make([]string, 0, len(destinations))
	for id := range destinations {
		destinationIDs = append(destinationIDs, id)
	}
	activeRoots, err := u.concepts.ExistingIDs(ctx, criteria, destinationIDs)
	if err != nil {
		return nil, err
	}
	for id := range activeRoots {
		if activeRoots[id] {
			parents[id] = nil
		}
	}

	builder := newClosureBuilder(parents, nil)
	fresh := map[string]*domain.QueryConcept{}
	for conceptID := range parents {
		ancestors, err := builder.Ancestors(conceptID)
		if err != nil {
			return nil, err
		}
		row := &domain.QueryConcept{ConceptID: conceptID, Stated: stated}
		row.Active = true
		row.SetParents(parents[conceptID])
		row.SetAncestors(ancestors)
		fresh[conceptID] = row
	}

	existingIDs, err := u.queryConcepts.AllConceptIDs(ctx, criteria, stated)
	if err != nil {
		return nil, err
	}
	existingRows, err := u.queryConcepts.FindByConceptIDs(ctx, criteria, stated, existingIDs)
	if err != nil {
		return nil, err
	}

	var toSave []*domain.QueryConcept
	seen := map[string]bool{}
	for _, existing := range existingRows {
		seen[existing.ConceptID] = true
		row, wanted := fresh[existing.ConceptID]
		if !wanted {
			existing.MarkDeleted()
			toSave = append(toSave, existing)
			continue
		}
		if equalSorted(existing.AncestorIDs(), row.AncestorIDs()) &&
			equalSorted(existing.ParentIDs(), row.ParentIDs()) {
			continue
		}
		existing.SetParents(row.ParentIDs())
		existing.SetAncestors(row.AncestorIDs())
		existing.MarkChanged()
		toSave = append(toSave, existing)
	}
	for conceptID, row := range fresh {
		if seen[conceptID] {
			continue
		}
		row.Creating = true
		toSave = append(toSave, row)
	}
	return toSave, nil
}

// allParents reads every active ISA edge of the form on the branch.
func (u *Updater) allParents(ctx dbctx.Context, criteria *vc.BranchCriteria, stated bool) (map[string][]string, error) {
	characteristic := domain.InferredRelationship
	if stated {
		characteristic = domain.StatedRelationship
	}
	relationships, err := u.relationships.FindActiveByCharacteristic(ctx, criteria, characteristic)
	if err != nil {
		return nil, err
	}

	parents := map[string]map[string]bool{}
	add := func(source, destination string) {
		set := parents[source]
		if set == nil {
			set = map[string]bool{}
			parents[source] = set
		}
		set[destination] = true
	}
	for _, r := range relationships {
		if r.TypeID == domain.ISA {
			add(r.SourceID, r.DestinationID)
		}
	}

	if stated {
		active := true
		owlMembers, err := u.members.FindByFilter(ctx, criteria, components.MemberFilter{
			RefsetID: domain.OWLAxiomRefset,
			Active:   &active,
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

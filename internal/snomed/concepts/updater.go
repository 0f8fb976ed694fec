package concepts

import (
	"fmt"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/snomed/axioms"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// saveConceptsInCommit runs the full update pipeline inside an open commit
// and returns the concepts as persisted. The caller owns the commit.
func (s *Service) saveConceptsInCommit(ctx dbctx.Context, commit *vc.Commit, incoming []*domain.Concept) ([]*domain.Concept, error) {
	if err := s.validateInput(incoming); err != nil {
		return nil, err
	}

	criteria := commit.Criteria()
	var existingIDs []string
	for _, c := range incoming {
		if c.ConceptID != "" {
			existingIDs = append(existingIDs, c.ConceptID)
		}
	}
	existingViews, err := s.loadConceptViews(ctx, criteria, existingIDs)
	if err != nil {
		return nil, err
	}

	reserved, err := s.assignIdentifiers(ctx, incoming)
	if err != nil {
		return nil, err
	}

	if err := s.checkReferences(ctx, criteria, incoming); err != nil {
		return nil, err
	}

	var allConcepts []*domain.Concept
	var allDescriptions []*domain.Description
	var allRelationships []*domain.Relationship
	var allMembers []*domain.ReferenceSetMember

	for _, concept := range incoming {
		existing := existingViews[concept.ConceptID]

		applyInactivationCascade(concept, existing)
		deriveDefinitionStatus(concept)

		if err := axioms.PopulateMembers(concept); err != nil {
			return nil, err
		}

		memberRows, err := s.reconcileMembers(concept, existing)
		if err != nil {
			return nil, err
		}
		allMembers = append(allMembers, memberRows...)

		stageConcept(concept, existing)
		allConcepts = append(allConcepts, concept)

		descRows, err := stageChildren(concept.Descriptions, existingDescriptions(existing))
		if err != nil {
			return nil, err
		}
		allDescriptions = append(allDescriptions, descRows...)

		relRows, err := stageChildren(concept.Relationships, existingRelationships(existing))
		if err != nil {
			return nil, err
		}
		allRelationships = append(allRelationships, relRows...)
	}

	if err := s.concepts.SaveBatch(ctx, commit, allConcepts); err != nil {
		return nil, err
	}
	if err := s.descriptions.SaveBatch(ctx, commit, allDescriptions); err != nil {
		return nil, err
	}
	if err := s.relationships.SaveBatch(ctx, commit, allRelationships); err != nil {
		return nil, err
	}
	if err := s.members.SaveBatch(ctx, commit, allMembers); err != nil {
		return nil, err
	}

	if err := s.cascadeMemberDeletion(ctx, commit); err != nil {
		return nil, err
	}

	if len(reserved) > 0 {
		if err := s.identifiers.ConfirmRegistered(ctx.Ctx, reserved); err != nil {
			s.log.Warn("identifier registration failed", "count", len(reserved), "error", err)
		}
	}
	return incoming, nil
}

func (s *Service) validateInput(incoming []*domain.Concept) error {
	for _, c := range incoming {
		if c.ModuleID == "" {
			c.ModuleID = domain.CoreModule
		}
		if c.DefinitionStatusID == "" {
			c.DefinitionStatusID = domain.Primitive
		}
		for _, d := range c.Descriptions {
			if d.Term == "" {
				return fmt.Errorf("description of concept %s has no term: %w", c.ConceptID, errors.ErrInvalidArgument)
			}
			if d.ModuleID == "" {
				d.ModuleID = c.ModuleID
			}
			if d.LanguageCode == "" {
				d.LanguageCode = "en"
			}
			if d.TypeID == "" {
				d.TypeID = domain.Synonym
			}
			if d.CaseSignificanceID == "" {
				d.CaseSignificanceID = domain.CaseInsensitive
			}
		}
		for _, r := range c.Relationships {
			if r.TypeID == "" || r.DestinationID == "" {
				return fmt.Errorf("relationship of concept %s needs type and destination: %w", c.ConceptID, errors.ErrInvalidArgument)
			}
			if r.ModuleID == "" {
				r.ModuleID = c.ModuleID
			}
			if r.CharacteristicTypeID == "" {
				r.CharacteristicTypeID = domain.StatedRelationship
			}
			if r.ModifierID == "" {
				r.ModifierID = domain.ExistentialRestrictionModifier
			}
		}
	}
	return nil
}

// assignIdentifiers reserves SCTIDs for components without one and stamps
// child component back-references.
func (s *Service) assignIdentifiers(ctx dbctx.Context, incoming []*domain.Concept) ([]string, error) {
	var newConcepts []*domain.Concept
	var newDescriptions []*domain.Description
	var newRelationships []*domain.Relationship
	for _, c := range incoming {
		if c.ConceptID == "" {
			newConcepts = append(newConcepts, c)
		}
		for _, d := range c.Descriptions {
			if d.DescriptionID == "" {
				newDescriptions = append(newDescriptions, d)
			}
		}
		for _, r := range c.Relationships {
			if r.RelationshipID == "" {
				newRelationships = append(newRelationships, r)
			}
		}
	}

	var reserved []string
	if len(newConcepts) > 0 {
		ids, err := s.identifiers.ReserveConceptIDs(ctx.Ctx, len(newConcepts))
		if err != nil {
			return nil, fmt.Errorf("reserve concept ids: %w", err)
		}
		for i, c := range newConcepts {
			c.ConceptID = ids[i]
		}
		reserved = append(reserved, ids...)
	}
	if len(newDescriptions) > 0 {
		ids, err := s.identifiers.ReserveDescriptionIDs(ctx.Ctx, len(newDescriptions))
		if err != nil {
			return nil, fmt.Errorf("reserve description ids: %w", err)
		}
		for i, d := range newDescriptions {
			d.DescriptionID = ids[i]
		}
		reserved = append(reserved, ids...)
	}
	if len(newRelationships) > 0 {
		ids, err := s.identifiers.ReserveRelationshipIDs(ctx.Ctx, len(newRelationships))
		if err != nil {
			return nil, fmt.Errorf("reserve relationship ids: %w", err)
		}
		for i, r := range newRelationships {
			r.RelationshipID = ids[i]
		}
		reserved = append(reserved, ids...)
	}

	for _, c := range incoming {
		for _, d := range c.Descriptions {
			d.ConceptID = c.ConceptID
		}
		for _, r := range c.Relationships {
			r.SourceID = c.ConceptID
		}
		for _, axiom := range append(append([]*domain.Axiom{}, c.ClassAxioms...), c.GCIAxioms...) {
			for _, r := range axiom.Relationships {
				r.SourceID = c.ConceptID
			}
		}
	}
	return reserved, nil
}

// checkReferences verifies that every relationship target and axiom attribute
// resolves to a concept visible on the branch or created in this batch.
func (s *Service) checkReferences(ctx dbctx.Context, criteria *vc.BranchCriteria, incoming []*domain.Concept) error {
	inBatch := map[string]bool{}
	for _, c := range incoming {
		inBatch[c.ConceptID] = true
	}
	wanted := map[string]bool{}
	note := func(ids ...string) {
		for _, id := range ids {
			if id != "" && !inBatch[id] {
				wanted[id] = true
			}
		}
	}
	for _, c := range incoming {
		for _, r := range c.Relationships {
			if r.Active {
				note(r.TypeID, r.DestinationID)
			}
		}
		for _, axiom := range append(append([]*domain.Axiom{}, c.ClassAxioms...), c.GCIAxioms...) {
			if !axiom.Active {
				continue
			}
			for _, r := range axiom.Relationships {
				note(r.TypeID, r.DestinationID)
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	existing, err := s.concepts.ExistingIDs(ctx, criteria, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !existing[id] {
			return fmt.Errorf("referenced concept %s not found on %s: %w", id, criteria.BranchPath(), errors.ErrIntegrity)
		}
	}
	return nil
}

// applyInactivationCascade deactivates child content when the concept goes
// inactive, and clears inactivation state when it is active.
func applyInactivationCascade(concept *domain.Concept, existing *domain.Concept) {
	if concept.Active {
		concept.InactivationIndicator = ""
		concept.AssociationTargets = nil
		return
	}
	for _, r := range concept.Relationships {
		r.Active = false
	}
	for _, axiom := range concept.ClassAxioms {
		axiom.Active = false
	}
	for _, axiom := range concept.GCIAxioms {
		axiom.Active = false
	}
	wasActive := existing != nil && existing.Active
	for _, d := range concept.Descriptions {
		if d.Active && (wasActive || d.InactivationIndicator == "") {
			d.InactivationIndicator = "CONCEPT_NON_CURRENT"
		}
	}
}

// deriveDefinitionStatus keeps the concept definition status in line with its
// axioms: any active equivalent-classes axiom makes the concept fully
// defined.
func deriveDefinitionStatus(concept *domain.Concept) {
	if len(concept.ClassAxioms) == 0 {
		return
	}
	status := domain.Primitive
	for _, axiom := range concept.ClassAxioms {
		if axiom.Active && axiom.DefinitionStatusID == domain.FullyDefined {
			status = domain.FullyDefined
		}
	}
	concept.DefinitionStatusID = status
	for _, axiom := range concept.ClassAxioms {
		if axiom.DefinitionStatusID == "" {
			axiom.DefinitionStatusID = status
		}
	}
}

func existingDescriptions(c *domain.Concept) []*domain.Description {
	if c == nil {
		return nil
	}
	return c.Descriptions
}

func existingRelationships(c *domain.Concept) []*domain.Relationship {
	if c == nil {
		return nil
	}
	return c.Relationships
}

func stageConcept(concept, existing *domain.Concept) {
	if existing == nil {
		concept.Creating = true
		domain.ClearReleaseDetails(concept)
		return
	}
	if concept.IsComponentChanged(existing) {
		concept.MarkChanged()
	}
	domain.CopyReleaseDetails(concept, existing)
	domain.UpdateEffectiveTime(concept)
}

// stageChildren matches incoming child components against the existing set.
// Unmatched existing components are deleted, which released components do not
// allow.
func stageChildren[T domain.SnomedComponent](incoming, existing []T) ([]T, error) {
	existingByID := map[string]T{}
	for _, e := range existing {
		existingByID[e.ID()] = e
	}
	var out []T
	seen := map[string]bool{}
	for _, item := range incoming {
		seen[item.ID()] = true
		prev, ok := existingByID[item.ID()]
		if !ok {
			item.Env().Creating = true
			domain.ClearReleaseDetails(item)
			out = append(out, item)
			continue
		}
		if item.IsComponentChanged(prev) {
			item.MarkChanged()
		}
		domain.CopyReleaseDetails(item, prev)
		domain.UpdateEffectiveTime(item)
		out = append(out, item)
	}
	for _, e := range existing {
		if seen[e.ID()] {
			continue
		}
		if e.IsReleased() {
			return nil, fmt.Errorf("component %s has been released and cannot be removed: %w", e.ID(), errors.ErrConflict)
		}
		e.MarkDeleted()
		out = append(out, e)
	}
	return out, nil
}

// cascadeMemberDeletion removes members that reference components deleted in
// this commit.
func (s *Service) cascadeMemberDeletion(ctx dbctx.Context, commit *vc.Commit) error {
	deleted := commit.EntitiesDeleted()
	if len(deleted) == 0 {
		return nil
	}
	orphans, err := s.members.FindByFilter(ctx, commit.Criteria(), components.MemberFilter{ReferencedComponentIDs: deleted})
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}
	for _, m := range orphans {
		m.MarkDeleted()
	}
	s.log.Info("members removed with their components", "count", len(orphans), "path", commit.Path())
	return s.members.SaveBatch(ctx, commit, orphans)
}

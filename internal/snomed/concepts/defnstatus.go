package concepts

import (
	"strings"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// UpdateDefinitionStatuses realigns concept definition statuses with their
// OWL axiom members inside an open commit. Concepts with any active
// equivalent-classes axiom become fully defined, the rest primitive. Wired as
// the member service's OWL change hook so direct member writes keep concepts
// consistent.
func (s *Service) UpdateDefinitionStatuses(ctx dbctx.Context, commit *vc.Commit, conceptIDs []string) error {
	if len(conceptIDs) == 0 {
		return nil
	}
	criteria := commit.Criteria()

	found, err := s.concepts.FindByIDs(ctx, criteria, conceptIDs)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}

	active := true
	owlMembers, err := s.members.FindByFilter(ctx, criteria, components.MemberFilter{
		RefsetID:               domain.OWLAxiomRefset,
		ReferencedComponentIDs: conceptIDs,
		Active:                 &active,
	})
	if err != nil {
		return err
	}
	equivalent := map[string]bool{}
	for _, m := range owlMembers {
		expression := m.AdditionalField(domain.FieldOwlExpression)
		if strings.HasPrefix(expression, "EquivalentClasses") {
			equivalent[m.ReferencedComponentID] = true
		}
	}

	var changed []*domain.Concept
	for _, c := range found {
		status := domain.Primitive
		if equivalent[c.ConceptID] {
			status = domain.FullyDefined
		}
		if c.DefinitionStatusID == status {
			continue
		}
		c.DefinitionStatusID = status
		c.MarkChanged()
		domain.UpdateEffectiveTime(c)
		changed = append(changed, c)
	}
	if len(changed) == 0 {
		return nil
	}
	s.log.Debug("definition statuses updated", "path", commit.Path(), "count", len(changed))
	return s.concepts.SaveBatch(ctx, commit, changed)
}

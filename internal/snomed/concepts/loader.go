package concepts

import (
	"fmt"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/snomed/axioms"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// loadConceptViews assembles full authoring views: concepts with their
// descriptions, stated relationships, axioms parsed from OWL members, and the
// language, inactivation and association members attached where they belong.
func (s *Service) loadConceptViews(ctx dbctx.Context, criteria *vc.BranchCriteria, conceptIDs []string) (map[string]*domain.Concept, error) {
	found, err := s.concepts.FindByIDs(ctx, criteria, conceptIDs)
	if err != nil {
		return nil, err
	}
	views := map[string]*domain.Concept{}
	for _, c := range found {
		views[c.ConceptID] = c
	}
	if len(views) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}

	descriptions, err := s.descriptions.FindByConceptIDs(ctx, criteria, ids)
	if err != nil {
		return nil, err
	}
	descByID := map[string]*domain.Description{}
	for _, d := range descriptions {
		descByID[d.DescriptionID] = d
		if c := views[d.ConceptID]; c != nil {
			c.Descriptions = append(c.Descriptions, d)
		}
	}

	relationships, err := s.relationships.FindBySourceIDs(ctx, criteria, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range relationships {
		if c := views[r.SourceID]; c != nil {
			c.Relationships = append(c.Relationships, r)
		}
	}

	members, err := s.members.FindByConceptIDs(ctx, criteria, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := attachMember(views, descByID, m, s); err != nil {
			return nil, err
		}
	}
	return views, nil
}

func attachMember(views map[string]*domain.Concept, descByID map[string]*domain.Description, m *domain.ReferenceSetMember, s *Service) error {
	concept := views[m.ConceptID]
	switch {
	case m.RefsetID == domain.OWLAxiomRefset:
		if concept == nil {
			return nil
		}
		axiom, gci, err := axioms.FromMember(m)
		if err != nil {
			return fmt.Errorf("concept %s: %w", m.ConceptID, err)
		}
		if axiom == nil {
			return nil
		}
		if gci {
			concept.GCIAxioms = append(concept.GCIAxioms, axiom)
		} else {
			concept.ClassAxioms = append(concept.ClassAxioms, axiom)
		}

	case m.RefsetID == domain.ConceptInactivationIndicatorRefset:
		if concept == nil || !m.Active {
			return nil
		}
		concept.InactivationIndicatorMember = m
		concept.InactivationIndicator = domain.InactivationIndicatorNames[m.AdditionalField(domain.FieldValueID)]

	case m.RefsetID == domain.DescriptionInactivationIndicatorRefset:
		d := descByID[m.ReferencedComponentID]
		if d == nil || !m.Active {
			return nil
		}
		d.InactivationIndicatorMember = m
		d.InactivationIndicator = domain.InactivationIndicatorNames[m.AdditionalField(domain.FieldValueID)]

	case isAssociationRefset(m.RefsetID):
		if !m.Active {
			return nil
		}
		name := domain.HistoricalAssociationNames[m.RefsetID]
		target := m.AdditionalField(domain.FieldTargetComponentID)
		if d := descByID[m.ReferencedComponentID]; d != nil {
			d.AssociationTargetMembers = append(d.AssociationTargetMembers, m)
			if d.AssociationTargets == nil {
				d.AssociationTargets = map[string][]string{}
			}
			d.AssociationTargets[name] = append(d.AssociationTargets[name], target)
		} else if concept != nil {
			concept.AssociationTargetMembers = append(concept.AssociationTargetMembers, m)
			if concept.AssociationTargets == nil {
				concept.AssociationTargets = map[string][]string{}
			}
			concept.AssociationTargets[name] = append(concept.AssociationTargets[name], target)
		}

	case m.AdditionalField(domain.FieldAcceptabilityID) != "":
		d := descByID[m.ReferencedComponentID]
		if d == nil {
			return nil
		}
		d.AddLangRefsetMember(m)
		if m.Active {
			if d.AcceptabilityMap == nil {
				d.AcceptabilityMap = map[string]string{}
			}
			d.AcceptabilityMap[m.RefsetID] = domain.DescriptionAcceptabilityNames[m.AdditionalField(domain.FieldAcceptabilityID)]
		}
	}
	return nil
}

func isAssociationRefset(refsetID string) bool {
	_, ok := domain.HistoricalAssociationNames[refsetID]
	return ok
}

package concepts

import (
	"fmt"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
)

// reconcileMembers turns the transient member views on a concept and its
// descriptions into reference set member rows to save: OWL axiom members,
// language acceptability members, inactivation indicators and historical
// association targets.
func (s *Service) reconcileMembers(concept, existing *domain.Concept) ([]*domain.ReferenceSetMember, error) {
	var out []*domain.ReferenceSetMember

	var existingAxiomMembers []*domain.ReferenceSetMember
	if existing != nil {
		existingAxiomMembers = existing.AllOwlAxiomMembers()
	}
	axiomRows, err := stageChildren(concept.AllOwlAxiomMembers(), existingAxiomMembers)
	if err != nil {
		return nil, err
	}
	out = append(out, axiomRows...)

	existingDescByID := map[string]*domain.Description{}
	for _, d := range existingDescriptions(existing) {
		existingDescByID[d.DescriptionID] = d
	}
	for _, d := range concept.Descriptions {
		prev := existingDescByID[d.DescriptionID]

		langRows, err := reconcileLanguageMembers(d, prev)
		if err != nil {
			return nil, err
		}
		out = append(out, langRows...)

		var prevIndicator *domain.ReferenceSetMember
		var prevAssociations []*domain.ReferenceSetMember
		if prev != nil {
			prevIndicator = prev.InactivationIndicatorMember
			prevAssociations = prev.AssociationTargetMembers
		}
		indicatorRows, err := reconcileIndicator(domain.DescriptionInactivationIndicatorRefset,
			d.DescriptionID, d.ModuleID, d.InactivationIndicator, prevIndicator)
		if err != nil {
			return nil, fmt.Errorf("description %s: %w", d.DescriptionID, err)
		}
		out = append(out, indicatorRows...)

		assocRows, err := reconcileAssociations(d.AssociationTargets, prevAssociations, d.DescriptionID, d.ModuleID)
		if err != nil {
			return nil, fmt.Errorf("description %s: %w", d.DescriptionID, err)
		}
		out = append(out, assocRows...)
	}

	var prevIndicator *domain.ReferenceSetMember
	var prevAssociations []*domain.ReferenceSetMember
	if existing != nil {
		prevIndicator = existing.InactivationIndicatorMember
		prevAssociations = existing.AssociationTargetMembers
	}
	indicatorRows, err := reconcileIndicator(domain.ConceptInactivationIndicatorRefset,
		concept.ConceptID, concept.ModuleID, concept.InactivationIndicator, prevIndicator)
	if err != nil {
		return nil, fmt.Errorf("concept %s: %w", concept.ConceptID, err)
	}
	out = append(out, indicatorRows...)

	assocRows, err := reconcileAssociations(concept.AssociationTargets, prevAssociations, concept.ConceptID, concept.ModuleID)
	if err != nil {
		return nil, fmt.Errorf("concept %s: %w", concept.ConceptID, err)
	}
	out = append(out, assocRows...)

	for _, m := range out {
		if m.ConceptID == "" {
			m.ConceptID = concept.ConceptID
		}
		// Never-released members that end up inactive are removed rather
		// than kept as history.
		if !m.Active && !m.Released {
			m.MarkDeleted()
		}
	}
	return out, nil
}

func reconcileLanguageMembers(d, prev *domain.Description) ([]*domain.ReferenceSetMember, error) {
	existingMembers := map[string]*domain.ReferenceSetMember{}
	if prev != nil {
		existingMembers = prev.LangRefsetMembers
	}

	var out []*domain.ReferenceSetMember
	for refsetID, acceptability := range d.AcceptabilityMap {
		acceptabilityID, ok := domain.AcceptabilityIDByName[acceptability]
		if !ok {
			return nil, fmt.Errorf("acceptability %q: %w", acceptability, errors.ErrInvalidArgument)
		}
		if em := existingMembers[refsetID]; em != nil {
			if em.Active && em.AdditionalField(domain.FieldAcceptabilityID) == acceptabilityID {
				continue
			}
			em.Active = true
			em.SetAdditionalField(domain.FieldAcceptabilityID, acceptabilityID)
			em.MarkChanged()
			domain.UpdateEffectiveTime(em)
			out = append(out, em)
			continue
		}
		m := domain.NewReferenceSetMember(d.ModuleID, refsetID, d.DescriptionID)
		m.ConceptID = d.ConceptID
		m.SetAdditionalField(domain.FieldAcceptabilityID, acceptabilityID)
		m.Creating = true
		domain.ClearReleaseDetails(m)
		out = append(out, m)
	}

	for refsetID, em := range existingMembers {
		if _, wanted := d.AcceptabilityMap[refsetID]; wanted || !em.Active {
			continue
		}
		em.Active = false
		em.MarkChanged()
		domain.UpdateEffectiveTime(em)
		out = append(out, em)
	}
	return out, nil
}

func reconcileIndicator(refsetID, referencedComponentID, moduleID, desiredName string, existingMember *domain.ReferenceSetMember) ([]*domain.ReferenceSetMember, error) {
	if desiredName == "" {
		if existingMember != nil && existingMember.Active {
			existingMember.Active = false
			existingMember.MarkChanged()
			domain.UpdateEffectiveTime(existingMember)
			return []*domain.ReferenceSetMember{existingMember}, nil
		}
		return nil, nil
	}
	valueID, ok := domain.InactivationIndicatorIDByName[desiredName]
	if !ok {
		return nil, fmt.Errorf("inactivation indicator %q: %w", desiredName, errors.ErrInvalidArgument)
	}
	if existingMember != nil {
		if existingMember.Active && existingMember.AdditionalField(domain.FieldValueID) == valueID {
			return nil, nil
		}
		existingMember.Active = true
		existingMember.SetAdditionalField(domain.FieldValueID, valueID)
		existingMember.MarkChanged()
		domain.UpdateEffectiveTime(existingMember)
		return []*domain.ReferenceSetMember{existingMember}, nil
	}
	m := domain.NewReferenceSetMember(moduleID, refsetID, referencedComponentID)
	m.SetAdditionalField(domain.FieldValueID, valueID)
	m.Creating = true
	domain.ClearReleaseDetails(m)
	return []*domain.ReferenceSetMember{m}, nil
}

func reconcileAssociations(desired map[string][]string, existingMembers []*domain.ReferenceSetMember, referencedComponentID, moduleID string) ([]*domain.ReferenceSetMember, error) {
	type key struct{ refsetID, target string }
	wanted := map[key]bool{}
	for name, targets := range desired {
		refsetID, ok := domain.AssociationRefsetIDByName[name]
		if !ok {
			return nil, fmt.Errorf("association %q: %w", name, errors.ErrInvalidArgument)
		}
		for _, target := range targets {
			wanted[key{refsetID, target}] = true
		}
	}

	var out []*domain.ReferenceSetMember
	have := map[key]bool{}
	for _, em := range existingMembers {
		k := key{em.RefsetID, em.AdditionalField(domain.FieldTargetComponentID)}
		if wanted[k] {
			have[k] = true
			if !em.Active {
				em.Active = true
				em.MarkChanged()
				domain.UpdateEffectiveTime(em)
				out = append(out, em)
			}
			continue
		}
		if em.Active {
			em.Active = false
			em.MarkChanged()
			domain.UpdateEffectiveTime(em)
			out = append(out, em)
		}
	}
	for k := range wanted {
		if have[k] {
			continue
		}
		m := domain.NewReferenceSetMember(moduleID, k.refsetID, referencedComponentID)
		m.SetAdditionalField(domain.FieldTargetComponentID, k.target)
		m.Creating = true
		domain.ClearReleaseDetails(m)
		out = append(out, m)
	}
	return out, nil
}

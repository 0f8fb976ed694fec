package axioms

import (
	"fmt"

	"github.com/yungbote/termgraph-backend/internal/domain"
)

// PopulateMembers projects the concept's class and GCI axioms onto OWL axiom
// refset members so they can be persisted with the other members. Existing
// axiom ids are kept so the member versions line up.
func PopulateMembers(concept *domain.Concept) error {
	for _, axiom := range concept.ClassAxioms {
		if axiom.DefinitionStatusID == "" {
			axiom.DefinitionStatusID = concept.DefinitionStatusID
		}
		expression, err := Serialize(concept.ConceptID, axiom)
		if err != nil {
			return fmt.Errorf("axiom of concept %s: %w", concept.ConceptID, err)
		}
		attachMember(concept, axiom, expression)
	}
	for _, axiom := range concept.GCIAxioms {
		expression, err := SerializeGCI(concept.ConceptID, axiom)
		if err != nil {
			return fmt.Errorf("gci axiom of concept %s: %w", concept.ConceptID, err)
		}
		attachMember(concept, axiom, expression)
	}
	return nil
}

func attachMember(concept *domain.Concept, axiom *domain.Axiom, expression string) {
	moduleID := axiom.ModuleID
	if moduleID == "" {
		moduleID = concept.ModuleID
	}
	member := domain.NewReferenceSetMember(moduleID, domain.OWLAxiomRefset, concept.ConceptID)
	if axiom.AxiomID != "" {
		member.MemberID = axiom.AxiomID
	} else {
		axiom.AxiomID = member.MemberID
	}
	member.Active = axiom.Active
	member.Released = axiom.Released
	member.ConceptID = concept.ConceptID
	member.SetAdditionalField(domain.FieldOwlExpression, expression)
	axiom.Member = member
}

// FromMember parses an OWL axiom member back into the authoring view. The
// second return is true for general concept inclusions. Property axioms
// return a nil axiom.
func FromMember(member *domain.ReferenceSetMember) (*domain.Axiom, bool, error) {
	parsed, err := Parse(member.AdditionalField(domain.FieldOwlExpression))
	if err != nil {
		return nil, false, fmt.Errorf("member %s: %w", member.MemberID, err)
	}
	if parsed == nil {
		return nil, false, nil
	}
	for _, rel := range parsed.Relationships {
		rel.SourceID = parsed.ReferencedConceptID
		rel.ModuleID = member.ModuleID
	}
	axiom := &domain.Axiom{
		AxiomID:            member.MemberID,
		ModuleID:           member.ModuleID,
		Active:             member.Active,
		Released:           member.Released,
		DefinitionStatusID: parsed.DefinitionStatusID,
		Relationships:      parsed.Relationships,
		Member:             member,
	}
	return axiom, parsed.GCI, nil
}

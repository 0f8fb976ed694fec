package axioms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
)

// Serialize renders a class axiom as an OWL functional-syntax expression with
// the named concept on the left. Parents appear bare, ungrouped attributes as
// existential restrictions and grouped attributes nested under the role group
// attribute.
func Serialize(conceptID string, axiom *domain.Axiom) (string, error) {
	expr, err := rightHandSide(axiom.Relationships)
	if err != nil {
		return "", err
	}
	fn := "SubClassOf"
	if axiom.DefinitionStatusID == domain.FullyDefined {
		fn = "EquivalentClasses"
	}
	return fmt.Sprintf("%s(:%s %s )", fn, conceptID, expr), nil
}

// SerializeGCI renders a general concept inclusion, the expression implying
// the named concept. GCIs are always subclass axioms.
func SerializeGCI(conceptID string, axiom *domain.Axiom) (string, error) {
	expr, err := rightHandSide(axiom.Relationships)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SubClassOf(%s :%s )", expr, conceptID), nil
}

func rightHandSide(relationships []*domain.Relationship) (string, error) {
	if len(relationships) == 0 {
		return "", fmt.Errorf("axiom without relationships: %w", errors.ErrInvalidArgument)
	}

	var operands []string
	grouped := map[int][]*domain.Relationship{}
	var groupOrder []int
	for _, rel := range relationships {
		switch {
		case rel.TypeID == domain.ISA:
			operands = append(operands, ":"+rel.DestinationID)
		case rel.RelationshipGroup == 0:
			operands = append(operands, someValuesFrom(rel.TypeID, ":"+rel.DestinationID))
		default:
			if _, seen := grouped[rel.RelationshipGroup]; !seen {
				groupOrder = append(groupOrder, rel.RelationshipGroup)
			}
			grouped[rel.RelationshipGroup] = append(grouped[rel.RelationshipGroup], rel)
		}
	}
	sort.Ints(groupOrder)
	for _, group := range groupOrder {
		var inner []string
		for _, rel := range grouped[group] {
			inner = append(inner, someValuesFrom(rel.TypeID, ":"+rel.DestinationID))
		}
		filler := inner[0]
		if len(inner) > 1 {
			filler = "ObjectIntersectionOf(" + strings.Join(inner, " ") + ")"
		}
		operands = append(operands, someValuesFrom(domain.RoleGroupAttribute, filler))
	}

	if len(operands) == 1 {
		return operands[0], nil
	}
	return "ObjectIntersectionOf(" + strings.Join(operands, " ") + ")", nil
}

func someValuesFrom(typeID, filler string) string {
	return "ObjectSomeValuesFrom(:" + typeID + " " + filler + ")"
}

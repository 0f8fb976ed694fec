package axioms

import (
	"fmt"
	"strings"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
)

// ParsedAxiom is the relationship view of one OWL axiom expression.
type ParsedAxiom struct {
	ReferencedConceptID string
	DefinitionStatusID  string
	GCI                 bool
	Relationships       []*domain.Relationship
}

// Property axioms carry no class semantics and are skipped by the converter.
var propertyAxiomFunctions = map[string]bool{
	"SubObjectPropertyOf":      true,
	"SubDataPropertyOf":        true,
	"TransitiveObjectProperty": true,
	"ReflexiveObjectProperty":  true,
	"Prefix":                   true,
	"Ontology":                 true,
}

// Parse reads an OWL functional-syntax class axiom back into relationship
// triples. Property axioms return a nil result without error; constructs
// outside the supported subset fail with ErrUnsupported.
func Parse(expression string) (*ParsedAxiom, error) {
	node, err := parseNode(newScanner(expression))
	if err != nil {
		return nil, err
	}
	if node.fn == "" {
		return nil, fmt.Errorf("axiom %q is not a function expression: %w", truncate(expression), errors.ErrUnsupported)
	}
	if propertyAxiomFunctions[node.fn] {
		return nil, nil
	}

	switch node.fn {
	case "SubClassOf":
		if len(node.args) != 2 {
			return nil, fmt.Errorf("SubClassOf with %d operands: %w", len(node.args), errors.ErrUnsupported)
		}
		left, right := node.args[0], node.args[1]
		if left.isConcept() {
			rels, err := relationshipsOf(right)
			if err != nil {
				return nil, err
			}
			return &ParsedAxiom{
				ReferencedConceptID: left.concept,
				DefinitionStatusID:  domain.Primitive,
				Relationships:       rels,
			}, nil
		}
		if right.isConcept() {
			rels, err := relationshipsOf(left)
			if err != nil {
				return nil, err
			}
			return &ParsedAxiom{
				ReferencedConceptID: right.concept,
				DefinitionStatusID:  domain.Primitive,
				GCI:                 true,
				Relationships:       rels,
			}, nil
		}
		return nil, fmt.Errorf("SubClassOf without a named class: %w", errors.ErrUnsupported)

	case "EquivalentClasses":
		if len(node.args) != 2 {
			return nil, fmt.Errorf("EquivalentClasses with %d operands: %w", len(node.args), errors.ErrUnsupported)
		}
		named, defn := node.args[0], node.args[1]
		if !named.isConcept() {
			named, defn = defn, named
		}
		if !named.isConcept() {
			return nil, fmt.Errorf("EquivalentClasses without a named class: %w", errors.ErrUnsupported)
		}
		rels, err := relationshipsOf(defn)
		if err != nil {
			return nil, err
		}
		return &ParsedAxiom{
			ReferencedConceptID: named.concept,
			DefinitionStatusID:  domain.FullyDefined,
			Relationships:       rels,
		}, nil
	}
	return nil, fmt.Errorf("axiom function %s: %w", node.fn, errors.ErrUnsupported)
}

// relationshipsOf flattens a class expression into triples, assigning role
// group numbers in order of appearance.
func relationshipsOf(node *exprNode) ([]*domain.Relationship, error) {
	var rels []*domain.Relationship
	group := 0
	operands := []*exprNode{node}
	if node.fn == "ObjectIntersectionOf" {
		operands = node.args
	}
	for _, op := range operands {
		switch {
		case op.isConcept():
			rels = append(rels, domain.NewRelationship(domain.ISA, op.concept))
		case op.fn == "ObjectSomeValuesFrom":
			if len(op.args) != 2 || !op.args[0].isConcept() {
				return nil, fmt.Errorf("malformed restriction: %w", errors.ErrUnsupported)
			}
			property, filler := op.args[0].concept, op.args[1]
			if property == domain.RoleGroupAttribute {
				group++
				inner := []*exprNode{filler}
				if filler.fn == "ObjectIntersectionOf" {
					inner = filler.args
				}
				for _, attr := range inner {
					if attr.fn != "ObjectSomeValuesFrom" || len(attr.args) != 2 ||
						!attr.args[0].isConcept() || !attr.args[1].isConcept() {
						return nil, fmt.Errorf("malformed role group: %w", errors.ErrUnsupported)
					}
					rels = append(rels, domain.NewRelationship(attr.args[0].concept, attr.args[1].concept).WithGroup(group))
				}
				continue
			}
			if !filler.isConcept() {
				return nil, fmt.Errorf("nested restriction outside a role group: %w", errors.ErrUnsupported)
			}
			rels = append(rels, domain.NewRelationship(property, filler.concept))
		default:
			return nil, fmt.Errorf("class expression %s: %w", op.fn, errors.ErrUnsupported)
		}
	}
	return rels, nil
}

type exprNode struct {
	fn      string
	concept string
	args    []*exprNode
}

func (n *exprNode) isConcept() bool { return n.concept != "" }

type scanner struct {
	input string
	pos   int
}

func newScanner(input string) *scanner { return &scanner{input: input} }

func (s *scanner) skipSpace() {
	for s.pos < len(s.input) && (s.input[s.pos] == ' ' || s.input[s.pos] == '\t' || s.input[s.pos] == '\n') {
		s.pos++
	}
}

func (s *scanner) peek() byte {
	s.skipSpace()
	if s.pos >= len(s.input) {
		return 0
	}
	return s.input[s.pos]
}

func (s *scanner) word() string {
	s.skipSpace()
	start := s.pos
	for s.pos < len(s.input) {
		c := s.input[s.pos]
		if c == '(' || c == ')' || c == ' ' || c == '\t' || c == '\n' {
			break
		}
		s.pos++
	}
	return s.input[start:s.pos]
}

func parseNode(s *scanner) (*exprNode, error) {
	switch c := s.peek(); {
	case c == ':':
		word := s.word()
		return &exprNode{concept: word[1:]}, nil
	case c == 0 || c == '(' || c == ')':
		return nil, fmt.Errorf("unexpected %q at %d: %w", string(c), s.pos, errors.ErrInvalidArgument)
	}
	fn := s.word()
	if s.peek() != '(' {
		return nil, fmt.Errorf("expected ( after %s: %w", fn, errors.ErrInvalidArgument)
	}
	s.pos++
	node := &exprNode{fn: fn}
	for {
		if s.peek() == ')' {
			s.pos++
			return node, nil
		}
		if s.peek() == 0 {
			return nil, fmt.Errorf("unterminated %s: %w", fn, errors.ErrInvalidArgument)
		}
		arg, err := parseNode(s)
		if err != nil {
			return nil, err
		}
		node.args = append(node.args, arg)
	}
}

func truncate(s string) string {
	if len(s) > 60 {
		return strings.TrimSpace(s[:60]) + "..."
	}
	return s
}

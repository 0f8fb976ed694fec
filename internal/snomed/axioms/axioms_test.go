package axioms

import (
	stderrors "errors"
	"testing"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
)

func TestSerializePrimitiveWithParent(t *testing.T) {
	axiom := domain.NewAxiom(domain.Primitive, domain.NewRelationship(domain.ISA, "138875005"))
	expr, err := Serialize("404684003", axiom)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := "SubClassOf(:404684003 :138875005 )"
	if expr != want {
		t.Fatalf("Serialize = %q, want %q", expr, want)
	}
}

func TestSerializeFullyDefinedWithGroups(t *testing.T) {
	axiom := domain.NewAxiom(domain.FullyDefined,
		domain.NewRelationship(domain.ISA, "404684003"),
		domain.NewRelationship("363698007", "39057004").WithGroup(1),
		domain.NewRelationship("116676008", "415582006").WithGroup(1),
	)
	expr, err := Serialize("195967001", axiom)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := "EquivalentClasses(:195967001 ObjectIntersectionOf(:404684003 " +
		"ObjectSomeValuesFrom(:609096000 ObjectIntersectionOf(" +
		"ObjectSomeValuesFrom(:363698007 :39057004) " +
		"ObjectSomeValuesFrom(:116676008 :415582006)))) )"
	if expr != want {
		t.Fatalf("Serialize = %q, want %q", expr, want)
	}
}

func TestSerializeGCI(t *testing.T) {
	axiom := domain.NewAxiom(domain.Primitive,
		domain.NewRelationship(domain.ISA, "64572001"),
		domain.NewRelationship("246075003", "80891009"),
	)
	expr, err := SerializeGCI("195967001", axiom)
	if err != nil {
		t.Fatalf("SerializeGCI: %v", err)
	}
	want := "SubClassOf(ObjectIntersectionOf(:64572001 " +
		"ObjectSomeValuesFrom(:246075003 :80891009)) :195967001 )"
	if expr != want {
		t.Fatalf("SerializeGCI = %q, want %q", expr, want)
	}
}

func TestSerializeEmptyAxiom(t *testing.T) {
	if _, err := Serialize("404684003", domain.NewAxiom(domain.Primitive)); err == nil {
		t.Fatalf("expected error for axiom without relationships")
	}
}

func TestParseSubClassOf(t *testing.T) {
	parsed, err := Parse("SubClassOf(:404684003 :138875005)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.ReferencedConceptID != "404684003" {
		t.Fatalf("referenced = %s", parsed.ReferencedConceptID)
	}
	if parsed.DefinitionStatusID != domain.Primitive {
		t.Fatalf("definition status = %s", parsed.DefinitionStatusID)
	}
	if parsed.GCI {
		t.Fatalf("unexpected GCI")
	}
	if len(parsed.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(parsed.Relationships))
	}
	rel := parsed.Relationships[0]
	if rel.TypeID != domain.ISA || rel.DestinationID != "138875005" {
		t.Fatalf("relationship = %s -> %s", rel.TypeID, rel.DestinationID)
	}
}

func TestParseGCI(t *testing.T) {
	parsed, err := Parse("SubClassOf(ObjectIntersectionOf(:64572001 ObjectSomeValuesFrom(:246075003 :80891009)) :195967001)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed.GCI {
		t.Fatalf("expected GCI")
	}
	if parsed.ReferencedConceptID != "195967001" {
		t.Fatalf("referenced = %s", parsed.ReferencedConceptID)
	}
	if len(parsed.Relationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(parsed.Relationships))
	}
}

func TestParseRoundTrip(t *testing.T) {
	axiom := domain.NewAxiom(domain.FullyDefined,
		domain.NewRelationship(domain.ISA, "404684003"),
		domain.NewRelationship("363698007", "39057004").WithGroup(1),
		domain.NewRelationship("116676008", "415582006").WithGroup(1),
	)
	expr, err := Serialize("195967001", axiom)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	parsed, err := Parse(expr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.ReferencedConceptID != "195967001" {
		t.Fatalf("referenced = %s", parsed.ReferencedConceptID)
	}
	if parsed.DefinitionStatusID != domain.FullyDefined {
		t.Fatalf("definition status = %s", parsed.DefinitionStatusID)
	}
	if len(parsed.Relationships) != 3 {
		t.Fatalf("got %d relationships, want 3", len(parsed.Relationships))
	}
	for _, rel := range parsed.Relationships {
		if rel.TypeID == domain.ISA {
			if rel.RelationshipGroup != 0 {
				t.Fatalf("ISA in group %d", rel.RelationshipGroup)
			}
			continue
		}
		if rel.RelationshipGroup != 1 {
			t.Fatalf("attribute %s in group %d, want 1", rel.TypeID, rel.RelationshipGroup)
		}
	}
}

func TestParsePropertyAxiomSkipped(t *testing.T) {
	parsed, err := Parse("TransitiveObjectProperty(:774081006)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != nil {
		t.Fatalf("property axiom should parse to nil")
	}
}

func TestParseUnsupported(t *testing.T) {
	cases := []string{
		"DisjointClasses(:1 :2)",
		"SubClassOf(:1 ObjectComplementOf(:2))",
		"SubClassOf(ObjectIntersectionOf(:1 :2) ObjectIntersectionOf(:3 :4))",
	}
	for _, input := range cases {
		_, err := Parse(input)
		if err == nil {
			t.Fatalf("Parse(%q): expected error", input)
		}
		if !stderrors.Is(err, errors.ErrUnsupported) {
			t.Fatalf("Parse(%q): %v, want ErrUnsupported", input, err)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"SubClassOf(:1 :2", "SubClassOf", ""} {
		_, err := Parse(input)
		if err == nil {
			t.Fatalf("Parse(%q): expected error", input)
		}
	}
}

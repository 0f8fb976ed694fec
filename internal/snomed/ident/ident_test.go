package ident

import (
	"context"
	"testing"

	"github.com/yungbote/termgraph-backend/internal/platform/logger"
)

func TestVerhoeffKnownIDs(t *testing.T) {
	// Real SCTIDs all verify; a flipped last digit does not.
	valid := []string{
		"138875005", // root concept
		"404684003",
		"116680003",
		"900000000000509007",
		"733073007",
	}
	for _, id := range valid {
		if !Verify(id) {
			t.Fatalf("Verify(%s) = false, want true", id)
		}
		check, ok := CheckDigit(id[:len(id)-1])
		if !ok {
			t.Fatalf("CheckDigit(%s) failed", id[:len(id)-1])
		}
		if check != id[len(id)-1] {
			t.Fatalf("CheckDigit(%s) = %c, want %c", id[:len(id)-1], check, id[len(id)-1])
		}
	}
	if Verify("138875004") {
		t.Fatalf("Verify accepted a bad check digit")
	}
	if Verify("1") {
		t.Fatalf("Verify accepted a one-digit string")
	}
	if Verify("13887500a") {
		t.Fatalf("Verify accepted a non-digit")
	}
}

func TestLocalSourceReserve(t *testing.T) {
	log := testLogger(t)
	source := NewLocalSource(1000, log)
	ctx := context.Background()

	concepts, err := source.ReserveConceptIDs(ctx, 3)
	if err != nil {
		t.Fatalf("ReserveConceptIDs: %v", err)
	}
	if len(concepts) != 3 {
		t.Fatalf("got %d ids, want 3", len(concepts))
	}
	seen := map[string]bool{}
	for _, id := range concepts {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if err := Validate(id, ConceptPartition); err != nil {
			t.Fatalf("Validate(%s): %v", id, err)
		}
	}

	descriptions, err := source.ReserveDescriptionIDs(ctx, 1)
	if err != nil {
		t.Fatalf("ReserveDescriptionIDs: %v", err)
	}
	if err := Validate(descriptions[0], DescriptionPartition); err != nil {
		t.Fatalf("Validate(%s): %v", descriptions[0], err)
	}

	relationships, err := source.ReserveRelationshipIDs(ctx, 1)
	if err != nil {
		t.Fatalf("ReserveRelationshipIDs: %v", err)
	}
	if err := Validate(relationships[0], RelationshipPartition); err != nil {
		t.Fatalf("Validate(%s): %v", relationships[0], err)
	}

	if _, err := source.ReserveConceptIDs(ctx, -1); err == nil {
		t.Fatalf("negative count should fail")
	}
	if err := source.ConfirmRegistered(ctx, concepts); err != nil {
		t.Fatalf("ConfirmRegistered: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("138875005", ConceptPartition); err != nil {
		t.Fatalf("Validate root concept: %v", err)
	}
	if err := Validate("12345", ConceptPartition); err == nil {
		t.Fatalf("short id should fail")
	}
	if err := Validate("0138875005", ConceptPartition); err == nil {
		t.Fatalf("leading zero should fail")
	}
	if err := Validate("138875005", DescriptionPartition); err == nil {
		t.Fatalf("wrong partition should fail")
	}
	if err := Validate("138875004", ConceptPartition); err == nil {
		t.Fatalf("bad check digit should fail")
	}
}

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

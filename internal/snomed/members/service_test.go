package members

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/data/repos/testutil"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/snomed/concepts"
	"github.com/yungbote/termgraph-backend/internal/snomed/ident"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

const (
	conceptID     = "138875005"
	descriptionID = "2901354016"
	// Carries the description partition but exists on no branch.
	missingDescriptionID = "999999014"
)

var sameAsRefset = domain.AssociationRefsetIDByName["SAME_AS"]

func setupService(t *testing.T) (dbctx.Context, *Service, *vc.Service, components.DescriptionRepo) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := dbctx.Context{Ctx: context.Background(), Tx: tx}
	log := testutil.Logger(t)

	registry := vc.NewRegistry(db, log)
	vcs := vc.NewService(db, registry, log)
	memberRepo := components.NewMemberRepo(db, log)
	descriptionRepo := components.NewDescriptionRepo(db, log)
	types, err := LoadTypeRegistry("", log)
	if err != nil {
		t.Fatalf("load type registry: %v", err)
	}
	service := NewService(vcs, memberRepo, descriptionRepo, types, log)

	if _, err := registry.Create(ctx, "MAIN"); err != nil {
		t.Fatalf("create MAIN: %v", err)
	}
	return ctx, service, vcs, descriptionRepo
}

func seedDescription(t *testing.T, ctx dbctx.Context, vcs *vc.Service, repo components.DescriptionRepo) {
	t.Helper()
	d := &domain.Description{
		DescriptionID:      descriptionID,
		ConceptID:          conceptID,
		Term:               "Heart structure",
		LanguageCode:       "en",
		TypeID:             domain.Synonym,
		CaseSignificanceID: domain.CaseInsensitive,
	}
	d.Active = true
	d.ModuleID = domain.CoreModule
	d.Creating = true

	commit, err := vcs.OpenCommit(ctx, "MAIN")
	if err != nil {
		t.Fatalf("open commit: %v", err)
	}
	if err := repo.SaveBatch(ctx, commit, []*domain.Description{d}); err != nil {
		t.Fatalf("save description: %v", err)
	}
	if err := vcs.MarkSuccessful(ctx, commit); err != nil {
		t.Fatalf("mark successful: %v", err)
	}
	vcs.Close(ctx, commit)
}

func associationMember() *domain.ReferenceSetMember {
	m := domain.NewReferenceSetMember(domain.CoreModule, sameAsRefset, conceptID)
	m.SetAdditionalField(domain.FieldTargetComponentID, "404684003")
	return m
}

func TestTypeRegistryDefaults(t *testing.T) {
	log := testutil.Logger(t)
	types, err := LoadTypeRegistry("", log)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	owl, ok := types.Lookup(domain.OWLAxiomRefset)
	if !ok || owl.Name != "OWLAxiom" {
		t.Fatalf("owl type = %+v", owl)
	}
	if _, ok := types.Lookup(sameAsRefset); !ok {
		t.Fatalf("association refsets not registered")
	}

	lang := domain.NewReferenceSetMember(domain.CoreModule, domain.USEnglishLanguageRefset, descriptionID)
	lang.SetAdditionalField(domain.FieldAcceptabilityID, domain.PreferredAcceptability)
	if err := types.Validate(lang); err != nil {
		t.Fatalf("valid language member rejected: %v", err)
	}
	lang.SetAdditionalField(domain.FieldMapTarget, "A01")
	if err := types.Validate(lang); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("stray field: %v, want ErrInvalidArgument", err)
	}

	// Unconfigured refsets accept any fields.
	free := domain.NewReferenceSetMember(domain.CoreModule, "900000000000999004", conceptID)
	free.SetAdditionalField("anything", "goes")
	if err := types.Validate(free); err != nil {
		t.Fatalf("unconfigured refset rejected: %v", err)
	}
}

func TestLoadTypeRegistryFromFile(t *testing.T) {
	log := testutil.Logger(t)
	path := filepath.Join(t.TempDir(), "refset-types.yaml")
	content := "refsetTypes:\n" +
		"  - name: SimpleMap\n" +
		"    refsetId: \"900000000000497000\"\n" +
		"    fields:\n" +
		"      - mapTarget\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	types, err := LoadTypeRegistry(path, log)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	simpleMap, ok := types.Lookup("900000000000497000")
	if !ok || simpleMap.Name != "SimpleMap" {
		t.Fatalf("configured type = %+v", simpleMap)
	}
	m := domain.NewReferenceSetMember(domain.CoreModule, "900000000000497000", conceptID)
	m.SetAdditionalField(domain.FieldMapTarget, "A04.0")
	if err := types.Validate(m); err != nil {
		t.Fatalf("map member rejected: %v", err)
	}

	// A missing file keeps the defaults without failing startup.
	types, err = LoadTypeRegistry(filepath.Join(t.TempDir(), "missing.yaml"), log)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if _, ok := types.Lookup(domain.OWLAxiomRefset); !ok {
		t.Fatalf("defaults lost on missing file")
	}
}

func TestCreateMembersValidation(t *testing.T) {
	ctx, service, _, _ := setupService(t)

	empty := &domain.ReferenceSetMember{}
	if _, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{empty}); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("empty member: %v, want ErrInvalidArgument", err)
	}

	lang := domain.NewReferenceSetMember(domain.CoreModule, domain.USEnglishLanguageRefset, descriptionID)
	lang.SetAdditionalField(domain.FieldMapTarget, "A01")
	if _, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{lang}); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("stray field: %v, want ErrInvalidArgument", err)
	}
}

func TestCreateAndDeleteMember(t *testing.T) {
	ctx, service, _, _ := setupService(t)

	saved, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{associationMember()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(saved) != 1 || saved[0].MemberID == "" {
		t.Fatalf("saved = %+v", saved)
	}
	if saved[0].ConceptID != conceptID {
		t.Fatalf("concept back-reference = %q", saved[0].ConceptID)
	}

	found, err := service.FindMember(ctx, "MAIN", saved[0].MemberID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.AdditionalField(domain.FieldTargetComponentID) != "404684003" {
		t.Fatalf("target = %q", found.AdditionalField(domain.FieldTargetComponentID))
	}
	listed, err := service.FindMembers(ctx, "MAIN", components.MemberFilter{RefsetID: sameAsRefset})
	if err != nil {
		t.Fatalf("find by filter: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("got %d members, want 1", len(listed))
	}

	if err := service.DeleteMember(ctx, "MAIN", saved[0].MemberID, false); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.FindMember(ctx, "MAIN", saved[0].MemberID); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("find deleted: %v, want ErrNotFound", err)
	}
}

func TestCreateMemberResolvesDescriptionConcept(t *testing.T) {
	ctx, service, vcs, descriptions := setupService(t)
	seedDescription(t, ctx, vcs, descriptions)

	lang := domain.NewReferenceSetMember(domain.CoreModule, domain.USEnglishLanguageRefset, descriptionID)
	lang.SetAdditionalField(domain.FieldAcceptabilityID, domain.PreferredAcceptability)
	saved, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{lang})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(saved) != 1 || saved[0].ConceptID != conceptID {
		t.Fatalf("saved = %+v", saved)
	}

	// A member pointing at a description the branch does not have is dropped.
	orphan := domain.NewReferenceSetMember(domain.CoreModule, domain.USEnglishLanguageRefset, missingDescriptionID)
	orphan.SetAdditionalField(domain.FieldAcceptabilityID, domain.PreferredAcceptability)
	saved, err = service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{orphan})
	if err != nil {
		t.Fatalf("create orphan: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("orphan member was saved: %+v", saved)
	}
	if _, err := service.FindMember(ctx, "MAIN", orphan.MemberID); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("find orphan: %v, want ErrNotFound", err)
	}
}

func TestInactiveUnreleasedMemberRemoved(t *testing.T) {
	ctx, service, _, _ := setupService(t)

	saved, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{associationMember()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inactivated := associationMember()
	inactivated.MemberID = saved[0].MemberID
	inactivated.Active = false
	if _, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{inactivated}); err != nil {
		t.Fatalf("inactivate: %v", err)
	}
	if _, err := service.FindMember(ctx, "MAIN", saved[0].MemberID); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("never-released inactive member kept: %v, want ErrNotFound", err)
	}
}

func TestOwlChangeHook(t *testing.T) {
	ctx, service, _, _ := setupService(t)

	var notified [][]string
	service.OnOwlChange = func(_ dbctx.Context, _ *vc.Commit, conceptIDs []string) error {
		notified = append(notified, conceptIDs)
		return nil
	}

	owl := domain.NewReferenceSetMember(domain.CoreModule, domain.OWLAxiomRefset, conceptID)
	owl.SetAdditionalField(domain.FieldOwlExpression, "SubClassOf(:138875005 :900000000000441003 )")
	saved, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{owl})
	if err != nil {
		t.Fatalf("create owl member: %v", err)
	}
	if len(notified) != 1 || len(notified[0]) != 1 || notified[0][0] != conceptID {
		t.Fatalf("notified = %v", notified)
	}

	if _, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{associationMember()}); err != nil {
		t.Fatalf("create association member: %v", err)
	}
	if len(notified) != 1 {
		t.Fatalf("hook ran for non-owl member: %v", notified)
	}

	if err := service.DeleteMember(ctx, "MAIN", saved[0].MemberID, false); err != nil {
		t.Fatalf("delete owl member: %v", err)
	}
	if len(notified) != 2 {
		t.Fatalf("hook missed the delete: %v", notified)
	}
}

func TestDefinitionStatusFollowsMemberWrites(t *testing.T) {
	ctx, service, vcs, _ := setupService(t)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	conceptRepo := components.NewConceptRepo(db, log)
	conceptService := concepts.NewService(vcs, conceptRepo,
		components.NewDescriptionRepo(db, log),
		components.NewRelationshipRepo(db, log),
		components.NewMemberRepo(db, log),
		ident.NewLocalSource(9000, log), log)
	service.OnOwlChange = conceptService.UpdateDefinitionStatuses

	seeded := &domain.Concept{ConceptID: conceptID, DefinitionStatusID: domain.Primitive}
	seeded.Active = true
	seeded.ModuleID = domain.CoreModule
	seeded.Creating = true
	commit, err := vcs.OpenCommit(ctx, "MAIN")
	if err != nil {
		t.Fatalf("open commit: %v", err)
	}
	if err := conceptRepo.SaveBatch(ctx, commit, []*domain.Concept{seeded}); err != nil {
		t.Fatalf("seed concept: %v", err)
	}
	if err := vcs.MarkSuccessful(ctx, commit); err != nil {
		t.Fatalf("mark successful: %v", err)
	}
	vcs.Close(ctx, commit)

	owl := domain.NewReferenceSetMember(domain.CoreModule, domain.OWLAxiomRefset, conceptID)
	owl.SetAdditionalField(domain.FieldOwlExpression,
		"EquivalentClasses(:138875005 ObjectIntersectionOf(:404684003 ObjectSomeValuesFrom(:363698007 :39057004)) )")
	saved, err := service.CreateMembers(ctx, "MAIN", []*domain.ReferenceSetMember{owl})
	if err != nil {
		t.Fatalf("create owl member: %v", err)
	}

	find := func() *domain.Concept {
		criteria, err := vcs.Registry().Criteria(ctx, "MAIN")
		if err != nil {
			t.Fatalf("criteria: %v", err)
		}
		c, err := conceptRepo.Find(ctx, criteria, conceptID)
		if err != nil {
			t.Fatalf("find concept: %v", err)
		}
		return c
	}
	if got := find(); got.DefinitionStatusID != domain.FullyDefined {
		t.Fatalf("definition status = %s after equivalent axiom", got.DefinitionStatusID)
	}

	if err := service.DeleteMember(ctx, "MAIN", saved[0].MemberID, false); err != nil {
		t.Fatalf("delete owl member: %v", err)
	}
	if got := find(); got.DefinitionStatusID != domain.Primitive {
		t.Fatalf("definition status = %s after axiom removal", got.DefinitionStatusID)
	}
}

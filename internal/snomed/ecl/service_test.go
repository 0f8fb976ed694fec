package ecl

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/data/repos/testutil"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/snomed/semidx"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

const (
	rootID = "940000014"
	aID    = "940000025"
	bID    = "940000036"
	cID    = "940000047"
	// Attribute type and target used by the refinement fixtures.
	siteTypeID   = "940000058"
	siteTargetID = "940000069"
)

type mapCache struct {
	pages map[string]*Page
	hits  int
	sets  int
}

func (c *mapCache) Get(_ context.Context, key string) (*Page, bool) {
	page, ok := c.pages[key]
	if ok {
		c.hits++
	}
	return page, ok
}

func (c *mapCache) Set(_ context.Context, key string, page *Page) {
	c.pages[key] = page
	c.sets++
}

func setupService(t *testing.T) (dbctx.Context, *Service, *mapCache) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := dbctx.Context{Ctx: context.Background(), Tx: tx}
	log := testutil.Logger(t)

	registry := vc.NewRegistry(db, log)
	vcs := vc.NewService(db, registry, log)
	conceptRepo := components.NewConceptRepo(db, log)
	relationshipRepo := components.NewRelationshipRepo(db, log)
	memberRepo := components.NewMemberRepo(db, log)
	queryConceptRepo := components.NewQueryConceptRepo(db, log)
	vcs.RegisterListener(semidx.NewUpdater(db, relationshipRepo, memberRepo, conceptRepo, queryConceptRepo, log))

	if _, err := registry.Create(ctx, "MAIN"); err != nil {
		t.Fatalf("create MAIN: %v", err)
	}

	var concepts []*domain.Concept
	for _, id := range []string{rootID, aID, bID, cID, siteTypeID, siteTargetID} {
		c := &domain.Concept{ConceptID: id, DefinitionStatusID: domain.Primitive}
		c.Active = true
		c.ModuleID = domain.CoreModule
		c.Creating = true
		concepts = append(concepts, c)
	}

	rel := func(relationshipID, sourceID, typeID, destinationID, characteristic string) *domain.Relationship {
		r := domain.NewRelationship(typeID, destinationID)
		r.RelationshipID = relationshipID
		r.SourceID = sourceID
		r.CharacteristicTypeID = characteristic
		r.ModuleID = domain.CoreModule
		r.Creating = true
		return r
	}
	relationships := []*domain.Relationship{
		rel("941000019", aID, domain.ISA, rootID, domain.InferredRelationship),
		rel("941000020", aID, domain.ISA, rootID, domain.StatedRelationship),
		rel("941000031", bID, domain.ISA, aID, domain.InferredRelationship),
		rel("941000042", bID, domain.ISA, aID, domain.StatedRelationship),
		rel("941000053", cID, domain.ISA, rootID, domain.InferredRelationship),
		rel("941000064", cID, domain.ISA, rootID, domain.StatedRelationship),
		rel("941000075", bID, siteTypeID, siteTargetID, domain.InferredRelationship),
	}

	commit, err := vcs.OpenCommit(ctx, "MAIN")
	if err != nil {
		t.Fatalf("open commit: %v", err)
	}
	if err := conceptRepo.SaveBatch(ctx, commit, concepts); err != nil {
		t.Fatalf("save concepts: %v", err)
	}
	if err := relationshipRepo.SaveBatch(ctx, commit, relationships); err != nil {
		t.Fatalf("save relationships: %v", err)
	}
	if err := vcs.MarkSuccessful(ctx, commit); err != nil {
		t.Fatalf("mark successful: %v", err)
	}
	vcs.Close(ctx, commit)

	cache := &mapCache{pages: map[string]*Page{}}
	service := NewService(registry, conceptRepo, relationshipRepo, queryConceptRepo, cache, log)
	return ctx, service, cache
}

func execute(t *testing.T, ctx dbctx.Context, service *Service, expression string) []string {
	t.Helper()
	page, err := service.Execute(ctx, "MAIN", expression, false, 0, 0)
	if err != nil {
		t.Fatalf("Execute(%q): %v", expression, err)
	}
	return page.ConceptIDs
}

func expectIDs(t *testing.T, expression string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%q = %v, want %v", expression, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q = %v, want %v", expression, got, want)
		}
	}
}

func TestExecuteOperators(t *testing.T) {
	ctx, service, _ := setupService(t)

	expectIDs(t, "self", execute(t, ctx, service, bID), []string{bID})
	expectIDs(t, "self missing", execute(t, ctx, service, "999999995"), []string{})
	expectIDs(t, "descendants", execute(t, ctx, service, "< "+rootID), []string{aID, bID, cID})
	expectIDs(t, "descendants or self", execute(t, ctx, service, "<< "+rootID), []string{rootID, aID, bID, cID})
	expectIDs(t, "ancestors", execute(t, ctx, service, "> "+bID), []string{rootID, aID})
	expectIDs(t, "ancestors or self", execute(t, ctx, service, ">> "+bID), []string{rootID, aID, bID})
	expectIDs(t, "wildcard", execute(t, ctx, service, "*"), []string{aID, bID, cID})
}

func TestExecuteRefinements(t *testing.T) {
	ctx, service, _ := setupService(t)

	expectIDs(t, "typed refinement",
		execute(t, ctx, service, "< "+rootID+" : "+siteTypeID+" = "+siteTargetID), []string{bID})
	expectIDs(t, "wildcard focus",
		execute(t, ctx, service, "* : "+siteTypeID+" = "+siteTargetID), []string{bID})
	expectIDs(t, "wildcard value",
		execute(t, ctx, service, "< "+rootID+" : "+siteTypeID+" = *"), []string{bID})
	expectIDs(t, "no match",
		execute(t, ctx, service, "< "+rootID+" : "+siteTypeID+" = "+cID), []string{})
	expectIDs(t, "missing attribute type",
		execute(t, ctx, service, "< "+rootID+" : 999999995 = *"), []string{})

	// The fixture's site relationship exists in the inferred form only.
	page, err := service.Execute(ctx, "MAIN", "< "+rootID+" : "+siteTypeID+" = "+siteTargetID, true, 0, 0)
	if err != nil {
		t.Fatalf("stated execute: %v", err)
	}
	if len(page.ConceptIDs) != 0 {
		t.Fatalf("stated refinement = %v, want empty", page.ConceptIDs)
	}
}

func TestExecutePaging(t *testing.T) {
	ctx, service, _ := setupService(t)

	page, err := service.Execute(ctx, "MAIN", "<< "+rootID, false, 0, 2)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if page.Total != 4 || len(page.ConceptIDs) != 2 {
		t.Fatalf("page = %+v", page)
	}
	expectIDs(t, "first page", page.ConceptIDs, []string{rootID, aID})

	page, err = service.Execute(ctx, "MAIN", "<< "+rootID, false, 2, 2)
	if err != nil {
		t.Fatalf("execute offset: %v", err)
	}
	expectIDs(t, "second page", page.ConceptIDs, []string{bID, cID})

	page, err = service.Execute(ctx, "MAIN", "<< "+rootID, false, 10, 2)
	if err != nil {
		t.Fatalf("execute past end: %v", err)
	}
	if page.Total != 4 || len(page.ConceptIDs) != 0 {
		t.Fatalf("past-end page = %+v", page)
	}
}

func TestExecuteCaching(t *testing.T) {
	ctx, service, cache := setupService(t)

	first := execute(t, ctx, service, "< "+rootID)
	if cache.sets != 1 || cache.hits != 0 {
		t.Fatalf("after first run: sets=%d hits=%d", cache.sets, cache.hits)
	}
	second := execute(t, ctx, service, "< "+rootID)
	if cache.hits != 1 || cache.sets != 1 {
		t.Fatalf("after second run: sets=%d hits=%d", cache.sets, cache.hits)
	}
	expectIDs(t, "cached result", second, first)
}

func TestExecuteErrors(t *testing.T) {
	ctx, service, _ := setupService(t)

	if _, err := service.Execute(ctx, "MAIN", "^ 700043003", false, 0, 0); !stderrors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("memberOf: %v, want ErrUnsupported", err)
	}
	if _, err := service.Execute(ctx, "MAIN", "<< *", false, 0, 0); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("operator on wildcard: %v, want ErrInvalidArgument", err)
	}
	if _, err := service.Execute(ctx, "MAIN/MISSING", "*", false, 0, 0); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("missing branch: %v, want ErrNotFound", err)
	}
}

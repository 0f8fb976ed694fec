package semidx

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/data/repos/testutil"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// The rebuilder reads both forms concurrently, so these tests run against the
// shared database instead of a per-test transaction. Each test works on its
// own branch with its own component ids.
type fixture struct {
	ctx           dbctx.Context
	registry      vc.Registry
	service       *vc.Service
	concepts      components.ConceptRepo
	relationships components.RelationshipRepo
	members       components.MemberRepo
	queryConcepts components.QueryConceptRepo
	updater       *Updater
}

func newFixture(t *testing.T, listen bool) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		ctx:           dbctx.Context{Ctx: context.Background()},
		registry:      vc.NewRegistry(db, log),
		concepts:      components.NewConceptRepo(db, log),
		relationships: components.NewRelationshipRepo(db, log),
		members:       components.NewMemberRepo(db, log),
		queryConcepts: components.NewQueryConceptRepo(db, log),
	}
	f.service = vc.NewService(db, f.registry, log)
	f.updater = NewUpdater(db, f.relationships, f.members, f.concepts, f.queryConcepts, log)
	if listen {
		f.service.RegisterListener(f.updater)
	}
	exists, err := f.registry.Exists(f.ctx, vc.RootPath)
	if err != nil {
		t.Fatalf("root exists: %v", err)
	}
	if !exists {
		if _, err := f.registry.Create(f.ctx, vc.RootPath); err != nil {
			t.Fatalf("create root: %v", err)
		}
	}
	return f
}

func (f *fixture) branch(t *testing.T, path string) {
	t.Helper()
	if _, err := f.registry.Create(f.ctx, path); err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
}

func concept(conceptID string) *domain.Concept {
	c := &domain.Concept{ConceptID: conceptID, DefinitionStatusID: domain.Primitive}
	c.Active = true
	c.ModuleID = domain.CoreModule
	c.Creating = true
	return c
}

func isaRel(relationshipID, sourceID, destinationID, characteristic string) *domain.Relationship {
	r := domain.NewRelationship(domain.ISA, destinationID)
	r.RelationshipID = relationshipID
	r.SourceID = sourceID
	r.CharacteristicTypeID = characteristic
	r.ModuleID = domain.CoreModule
	r.Creating = true
	return r
}

func (f *fixture) commit(t *testing.T, path string, concepts []*domain.Concept, relationships []*domain.Relationship) {
	t.Helper()
	commit, err := f.service.OpenCommit(f.ctx, path)
	if err != nil {
		t.Fatalf("open commit: %v", err)
	}
	defer f.service.Close(f.ctx, commit)
	if len(concepts) > 0 {
		if err := f.concepts.SaveBatch(f.ctx, commit, concepts); err != nil {
			t.Fatalf("save concepts: %v", err)
		}
	}
	if len(relationships) > 0 {
		if err := f.relationships.SaveBatch(f.ctx, commit, relationships); err != nil {
			t.Fatalf("save relationships: %v", err)
		}
	}
	if err := f.service.MarkSuccessful(f.ctx, commit); err != nil {
		t.Fatalf("mark successful: %v", err)
	}
}

func (f *fixture) ancestorsOf(t *testing.T, path, conceptID string, stated bool) []string {
	t.Helper()
	criteria, err := f.registry.Criteria(f.ctx, path)
	if err != nil {
		t.Fatalf("criteria: %v", err)
	}
	rows, err := f.queryConcepts.FindByConceptIDs(f.ctx, criteria, stated, []string{conceptID})
	if err != nil {
		t.Fatalf("find index rows: %v", err)
	}
	if len(rows) == 0 {
		return nil
	}
	return rows[0].AncestorIDs()
}

func TestUpdaterIndexesCommits(t *testing.T) {
	f := newFixture(t, true)
	f.branch(t, "MAIN/IDX-A")

	root, a, b := "910000017", "910000028", "910000039"
	f.commit(t, "MAIN/IDX-A",
		[]*domain.Concept{concept(root), concept(a), concept(b)},
		[]*domain.Relationship{
			isaRel("911000012", a, root, domain.InferredRelationship),
			isaRel("911000023", a, root, domain.StatedRelationship),
			isaRel("911000034", b, a, domain.InferredRelationship),
			isaRel("911000045", b, a, domain.StatedRelationship),
		},
	)

	if got := f.ancestorsOf(t, "MAIN/IDX-A", a, false); !equalSorted(got, []string{root}) {
		t.Fatalf("inferred ancestors of a = %v", got)
	}
	if got := f.ancestorsOf(t, "MAIN/IDX-A", b, false); !equalSorted(got, sortStrings([]string{a, root})) {
		t.Fatalf("inferred ancestors of b = %v", got)
	}
	if got := f.ancestorsOf(t, "MAIN/IDX-A", b, true); !equalSorted(got, sortStrings([]string{a, root})) {
		t.Fatalf("stated ancestors of b = %v", got)
	}

	criteria, err := f.registry.Criteria(f.ctx, "MAIN/IDX-A")
	if err != nil {
		t.Fatalf("criteria: %v", err)
	}
	descendants, err := f.queryConcepts.DescendantIDs(f.ctx, criteria, false, root)
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	found := map[string]bool{}
	for _, id := range descendants {
		found[id] = true
	}
	if !found[a] || !found[b] {
		t.Fatalf("descendants of root = %v", descendants)
	}

	// Move b directly under root: the closure of b is recomputed.
	moved := isaRel("911000034", b, a, domain.InferredRelationship)
	moved.Active = false
	moved.Creating = false
	moved.MarkChanged()
	f.commit(t, "MAIN/IDX-A", nil, []*domain.Relationship{
		moved,
		isaRel("911000056", b, root, domain.InferredRelationship),
	})

	if got := f.ancestorsOf(t, "MAIN/IDX-A", b, false); !equalSorted(got, []string{root}) {
		t.Fatalf("inferred ancestors of b after move = %v", got)
	}
	// The stated form did not change.
	if got := f.ancestorsOf(t, "MAIN/IDX-A", b, true); !equalSorted(got, sortStrings([]string{a, root})) {
		t.Fatalf("stated ancestors of b after move = %v", got)
	}
}

func TestUpdaterRejectsCycle(t *testing.T) {
	f := newFixture(t, true)
	f.branch(t, "MAIN/IDX-B")

	x, y := "920000016", "920000027"
	commit, err := f.service.OpenCommit(f.ctx, "MAIN/IDX-B")
	if err != nil {
		t.Fatalf("open commit: %v", err)
	}
	if err := f.concepts.SaveBatch(f.ctx, commit, []*domain.Concept{concept(x), concept(y)}); err != nil {
		t.Fatalf("save concepts: %v", err)
	}
	rels := []*domain.Relationship{
		isaRel("921000011", x, y, domain.InferredRelationship),
		isaRel("921000022", y, x, domain.InferredRelationship),
	}
	if err := f.relationships.SaveBatch(f.ctx, commit, rels); err != nil {
		t.Fatalf("save relationships: %v", err)
	}

	err = f.service.MarkSuccessful(f.ctx, commit)
	if !stderrors.Is(err, errors.ErrCycleDetected) {
		t.Fatalf("mark successful: %v, want ErrCycleDetected", err)
	}
	f.service.Close(f.ctx, commit)

	// The failed commit is rolled back with its content.
	criteria, err := f.registry.Criteria(f.ctx, "MAIN/IDX-B")
	if err != nil {
		t.Fatalf("criteria: %v", err)
	}
	existing, err := f.concepts.ExistingIDs(f.ctx, criteria, []string{x, y})
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if existing[x] || existing[y] {
		t.Fatalf("rolled back concepts still visible: %v", existing)
	}
}

func TestRebuild(t *testing.T) {
	// Content is written without the index listener, then rebuilt in one go.
	f := newFixture(t, false)
	f.branch(t, "MAIN/IDX-C")

	root, a, b := "930000015", "930000026", "930000037"
	f.commit(t, "MAIN/IDX-C",
		[]*domain.Concept{concept(root), concept(a), concept(b)},
		[]*domain.Relationship{
			isaRel("931000010", a, root, domain.InferredRelationship),
			isaRel("931000021", b, a, domain.InferredRelationship),
			isaRel("931000032", a, root, domain.StatedRelationship),
			isaRel("931000043", b, a, domain.StatedRelationship),
		},
	)

	if got := f.ancestorsOf(t, "MAIN/IDX-C", b, false); got != nil {
		t.Fatalf("index populated without listener: %v", got)
	}

	rebuilder := NewRebuilder(f.service, f.updater)
	if err := rebuilder.Rebuild(f.ctx, "MAIN/IDX-C"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if got := f.ancestorsOf(t, "MAIN/IDX-C", b, false); !equalSorted(got, sortStrings([]string{a, root})) {
		t.Fatalf("inferred ancestors of b = %v", got)
	}
	if got := f.ancestorsOf(t, "MAIN/IDX-C", b, true); !equalSorted(got, sortStrings([]string{a, root})) {
		t.Fatalf("stated ancestors of b = %v", got)
	}

	// The root concept is indexed with an empty closure.
	criteria, err := f.registry.Criteria(f.ctx, "MAIN/IDX-C")
	if err != nil {
		t.Fatalf("criteria: %v", err)
	}
	all, err := f.queryConcepts.AllConceptIDs(f.ctx, criteria, false)
	if err != nil {
		t.Fatalf("all concept ids: %v", err)
	}
	indexed := map[string]bool{}
	for _, id := range all {
		indexed[id] = true
	}
	if !indexed[root] || !indexed[a] || !indexed[b] {
		t.Fatalf("indexed = %v", all)
	}

	// Dropping b's relationships removes its row on the next rebuild.
	gone := isaRel("931000021", b, a, domain.InferredRelationship)
	gone.Active = false
	gone.Creating = false
	gone.MarkChanged()
	goneStated := isaRel("931000043", b, a, domain.StatedRelationship)
	goneStated.Active = false
	goneStated.Creating = false
	goneStated.MarkChanged()
	f.commit(t, "MAIN/IDX-C", nil, []*domain.Relationship{gone, goneStated})

	if err := rebuilder.Rebuild(f.ctx, "MAIN/IDX-C"); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	criteria, err = f.registry.Criteria(f.ctx, "MAIN/IDX-C")
	if err != nil {
		t.Fatalf("criteria after rebuild: %v", err)
	}
	all, err = f.queryConcepts.AllConceptIDs(f.ctx, criteria, false)
	if err != nil {
		t.Fatalf("all concept ids: %v", err)
	}
	for _, id := range all {
		if id == b {
			t.Fatalf("b still indexed after its relationships were inactivated")
		}
	}
}

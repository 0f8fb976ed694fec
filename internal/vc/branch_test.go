package vc

import (
	"testing"
)

func TestParentPath(t *testing.T) {
	cases := []struct{ path, parent string }{
		{"MAIN", ""},
		{"MAIN/PROJECT", "MAIN"},
		{"MAIN/PROJECT/TASK-1", "MAIN/PROJECT"},
	}
	for _, tc := range cases {
		if got := ParentPath(tc.path); got != tc.parent {
			t.Fatalf("ParentPath(%s) = %q, want %q", tc.path, got, tc.parent)
		}
	}
}

func TestIsValidPath(t *testing.T) {
	valid := []string{"MAIN", "MAIN/PROJECT", "MAIN/PROJECT/TASK-1"}
	for _, path := range valid {
		if !IsValidPath(path) {
			t.Fatalf("IsValidPath(%s) = false, want true", path)
		}
	}
	invalid := []string{"", "PROJECT", "MAIN/", "MAIN//TASK", "MAIN/TA SK", "main"}
	for _, path := range invalid {
		if IsValidPath(path) {
			t.Fatalf("IsValidPath(%s) = true, want false", path)
		}
	}
}

func TestIsBehindParent(t *testing.T) {
	parent := &Branch{Path: "MAIN", HeadTS: 200}
	child := &Branch{Path: "MAIN/A", BaseTS: 100}
	if !child.IsBehindParent(parent) {
		t.Fatalf("child based at 100 should be behind parent head 200")
	}
	child.BaseTS = 200
	if child.IsBehindParent(parent) {
		t.Fatalf("child based at parent head is not behind")
	}
	if child.IsBehindParent(nil) {
		t.Fatalf("nil parent is never ahead")
	}
}

func TestReplacedIDsRoundTrip(t *testing.T) {
	b := &Branch{}
	if got := b.ReplacedIDs(); len(got) != 0 {
		t.Fatalf("empty branch replaced ids = %v", got)
	}

	b.SetReplacedIDs(map[string][]string{"concept": {"r1", "r2"}})
	got := b.ReplacedIDs()
	if len(got["concept"]) != 2 {
		t.Fatalf("replaced ids = %v", got)
	}

	b.MergeReplacedIDs(map[string][]string{
		"concept":     {"r2", "r3"},
		"description": {"r4"},
	})
	got = b.ReplacedIDs()
	if len(got["concept"]) != 3 {
		t.Fatalf("merged concept ids = %v", got["concept"])
	}
	if len(got["description"]) != 1 {
		t.Fatalf("merged description ids = %v", got["description"])
	}

	b.SetReplacedIDs(nil)
	if got := b.ReplacedIDs(); len(got) != 0 {
		t.Fatalf("cleared replaced ids = %v", got)
	}
}

func TestBuildCriteriaLineage(t *testing.T) {
	// Task forked from project at 150, project forked from MAIN at 100.
	task := &Branch{Path: "MAIN/PROJECT/TASK-1", BaseTS: 150, HeadTS: 180}
	project := &Branch{Path: "MAIN/PROJECT", BaseTS: 100, HeadTS: 160}
	main := &Branch{Path: "MAIN", BaseTS: 50, HeadTS: 170}
	project.SetReplacedIDs(map[string][]string{"concept": {"p-row"}})
	task.SetReplacedIDs(map[string][]string{"concept": {"t-row"}})

	criteria := buildCriteria([]*Branch{task, project, main}, 180, nil)

	if criteria.BranchPath() != task.Path || criteria.Timepoint() != 180 {
		t.Fatalf("criteria header = %s@%d", criteria.BranchPath(), criteria.Timepoint())
	}
	if len(criteria.clauses) != 3 {
		t.Fatalf("got %d clauses, want 3", len(criteria.clauses))
	}

	own := criteria.clauses[0]
	if own.path != task.Path || own.maxTS != 180 || len(own.excluded) != 0 {
		t.Fatalf("own clause = %+v", own)
	}

	// Project content is capped at the task's base; rows the task replaced
	// are excluded.
	parent := criteria.clauses[1]
	if parent.path != project.Path || parent.maxTS != 150 {
		t.Fatalf("parent clause = %+v", parent)
	}
	if len(parent.excluded) != 1 || parent.excluded[0] != "t-row" {
		t.Fatalf("parent exclusions = %v", parent.excluded)
	}

	// MAIN is capped at the lowest base of the branches below it (the
	// project's 100) and excludes rows replaced anywhere below.
	root := criteria.clauses[2]
	if root.path != main.Path || root.maxTS != 100 {
		t.Fatalf("root clause = %+v", root)
	}
	if len(root.excluded) != 2 {
		t.Fatalf("root exclusions = %v", root.excluded)
	}
	seen := map[string]bool{}
	for _, id := range root.excluded {
		seen[id] = true
	}
	if !seen["t-row"] || !seen["p-row"] {
		t.Fatalf("root exclusions = %v", root.excluded)
	}
}

func TestBuildCriteriaExtraReplaced(t *testing.T) {
	child := &Branch{Path: "MAIN/A", BaseTS: 100, HeadTS: 120}
	main := &Branch{Path: "MAIN", BaseTS: 50, HeadTS: 110}

	criteria := buildCriteria([]*Branch{child, main}, 120,
		map[string][]string{"concept": {"pending-row"}})

	parent := criteria.clauses[1]
	if len(parent.excluded) != 1 || parent.excluded[0] != "pending-row" {
		t.Fatalf("parent exclusions = %v", parent.excluded)
	}
}

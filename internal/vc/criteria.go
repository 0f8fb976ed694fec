package vc

import (
	"gorm.io/gorm"
)

type pathClause struct {
	path     string
	maxTS    int64
	excluded []string
}

// BranchCriteria restricts a component query to the versions visible from one
// branch at one timepoint. A version on the branch itself is visible when it
// started at or before the timepoint and has not ended at or before it; an
// ancestor version is visible at the capped base timepoint of that ancestor
// unless a branch below has replaced it.
type BranchCriteria struct {
	branchPath string
	timepoint  int64
	clauses    []pathClause
}

func (c *BranchCriteria) BranchPath() string { return c.branchPath }
func (c *BranchCriteria) Timepoint() int64   { return c.timepoint }

// Scope returns a gorm scope applying the criteria to the given table.
// Exclusion lists hold row ids, which are unique across tables, so each
// ancestor clause carries one list that serves every table.
func (c *BranchCriteria) Scope(table string) func(*gorm.DB) *gorm.DB {
	clauses := c.clauses
	return func(db *gorm.DB) *gorm.DB {
		session := db.Session(&gorm.Session{NewDB: true})
		var or *gorm.DB
		for _, cl := range clauses {
			q := session.Where(table+".path = ? AND "+table+".start_ts <= ? AND ("+table+".end_ts IS NULL OR "+table+".end_ts > ?)",
				cl.path, cl.maxTS, cl.maxTS)
			if len(cl.excluded) > 0 {
				q = q.Where(table+".row_id NOT IN ?", cl.excluded)
			}
			if or == nil {
				or = q
			} else {
				or = or.Or(q)
			}
		}
		return db.Where(or)
	}
}

// buildCriteria walks the lineage from the branch to the root. The timepoint
// seen on each ancestor is capped by the minimum base along the way, so a
// parent commit made after the fork is not visible until rebase.
func buildCriteria(lineage []*Branch, timepoint int64, extraReplaced map[string][]string) *BranchCriteria {
	branch := lineage[0]
	criteria := &BranchCriteria{
		branchPath: branch.Path,
		timepoint:  timepoint,
		clauses:    []pathClause{{path: branch.Path, maxTS: timepoint}},
	}

	excluded := flattenReplaced(branch.ReplacedIDs(), extraReplaced)
	cap := branch.BaseTS
	for _, ancestor := range lineage[1:] {
		criteria.clauses = append(criteria.clauses, pathClause{
			path:     ancestor.Path,
			maxTS:    cap,
			excluded: excluded,
		})
		excluded = flattenReplaced(ancestor.ReplacedIDs(), nil, excluded...)
		if ancestor.BaseTS < cap {
			cap = ancestor.BaseTS
		}
	}
	return criteria
}

func flattenReplaced(replaced, extra map[string][]string, carry ...string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	add(carry)
	for _, ids := range replaced {
		add(ids)
	}
	for _, ids := range extra {
		add(ids)
	}
	return out
}

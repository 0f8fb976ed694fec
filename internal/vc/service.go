package vc

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
)

// ComponentTable describes one versioned table the service rolls back,
// promotes and scans for conflicts. Derived tables are rebuilt rather than
// merged, so they are skipped by conflict detection and promotion moves.
type ComponentTable struct {
	Name     string
	IDColumn string
	Derived  bool
}

func DefaultComponentTables() []ComponentTable {
	return []ComponentTable{
		{Name: "concept", IDColumn: "concept_id"},
		{Name: "description", IDColumn: "description_id"},
		{Name: "relationship", IDColumn: "relationship_id"},
		{Name: "reference_set_member", IDColumn: "member_id"},
		{Name: "query_concept", IDColumn: "concept_id", Derived: true},
	}
}

// CommitListener runs inside a commit just before the head is advanced.
// Writes it makes carry the commit timepoint and become visible atomically
// with the rest of the commit. An error aborts the commit.
type CommitListener interface {
	PreCommitCompletion(ctx dbctx.Context, commit *Commit) error
}

// Service owns the commit protocol: one writer per branch, timepoints strictly
// greater than head, visibility flipped by advancing head.
type Service struct {
	db        *gorm.DB
	branches  Registry
	log       *logger.Logger
	tables    []ComponentTable
	listeners []CommitListener
	locks     sync.Map
}

func NewService(db *gorm.DB, branches Registry, baseLog *logger.Logger) *Service {
	return &Service{
		db:       db,
		branches: branches,
		log:      baseLog.With("service", "VersionControl"),
		tables:   DefaultComponentTables(),
	}
}

func (s *Service) RegisterListener(l CommitListener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) Registry() Registry { return s.branches }

func (s *Service) branchLock(path string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Service) nextTimepoint(head int64) int64 {
	tp := time.Now().UnixMilli()
	if tp <= head {
		tp = head + 1
	}
	return tp
}

// OpenCommit locks the branch and opens a content commit.
func (s *Service) OpenCommit(ctx dbctx.Context, path string) (*Commit, error) {
	return s.open(ctx, path, ContentCommit, nil)
}

func (s *Service) open(ctx dbctx.Context, path string, commitType CommitType, source *Branch) (*Commit, error) {
	mu := s.branchLock(path)
	mu.Lock()

	lineage, err := s.branches.Lineage(ctx, path)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	branch := lineage[0]
	branch.Locked = true
	branch.LockMessage = commitType.String() + " commit in progress"
	if err := s.branches.Save(ctx, branch); err != nil {
		mu.Unlock()
		return nil, err
	}

	commit := &Commit{
		branch:     branch,
		lineage:    lineage,
		timepoint:  s.nextTimepoint(branch.HeadTS),
		commitType: commitType,
		source:     source,
		release:    mu.Unlock,
	}
	s.log.Debug("commit opened", "path", path, "type", commitType.String(), "timepoint", commit.timepoint)
	return commit, nil
}

// MarkSuccessful runs the commit listeners and flips visibility by advancing
// the branch head. Until the branch row is saved nothing written under the
// commit timepoint is visible to readers.
func (s *Service) MarkSuccessful(ctx dbctx.Context, c *Commit) error {
	if c.closed {
		return fmt.Errorf("commit on %s already closed: %w", c.Path(), errors.ErrInternal)
	}
	for _, l := range s.listeners {
		if err := l.PreCommitCompletion(ctx, c); err != nil {
			return fmt.Errorf("commit listener: %w", err)
		}
	}

	branch := c.branch
	switch c.commitType {
	case ContentCommit:
		branch.MergeReplacedIDs(c.VersionsReplaced())
		branch.ContainsContent = true
	case RebaseCommit:
		parent := c.lineage[1]
		branch.BaseTS = parent.HeadTS
		branch.MergeReplacedIDs(c.VersionsReplaced())
		if err := s.pruneReplaced(ctx, branch); err != nil {
			return err
		}
	case PromotionCommit:
		branch.ContainsContent = true
	}
	branch.HeadTS = c.timepoint
	branch.Locked = false
	branch.LockMessage = ""
	if err := s.branches.Save(ctx, branch); err != nil {
		return err
	}

	if c.commitType == PromotionCommit && c.source != nil {
		src := c.source
		src.BaseTS = c.timepoint
		src.HeadTS = c.timepoint
		src.ContainsContent = false
		src.VersionsReplaced = nil
		src.LastPromotionTS = c.timepoint
		src.Locked = false
		src.LockMessage = ""
		if err := s.branches.Save(ctx, src); err != nil {
			return err
		}
	}

	c.successful = true
	s.log.Info("commit completed", "path", c.Path(), "type", c.commitType.String(), "timepoint", c.timepoint)
	return nil
}

// Close releases the branch lock. If the commit was not marked successful its
// writes are rolled back: rows started at the commit timepoint are deleted
// and end stamps at the timepoint are reverted.
func (s *Service) Close(ctx dbctx.Context, c *Commit) {
	if c.closed {
		return
	}
	c.closed = true
	defer c.release()

	if !c.successful {
		s.rollback(ctx, c)
		c.branch.Locked = false
		c.branch.LockMessage = ""
		if err := s.branches.Save(ctx, c.branch); err != nil {
			s.log.Error("unlock after rollback failed", "path", c.Path(), "error", err)
		}
		if c.source != nil {
			c.source.Locked = false
			c.source.LockMessage = ""
			if err := s.branches.Save(ctx, c.source); err != nil {
				s.log.Error("unlock source after rollback failed", "path", c.source.Path, "error", err)
			}
		}
	}
}

func (s *Service) rollback(ctx dbctx.Context, c *Commit) {
	tx := s.tx(ctx)
	paths := make([]string, 0, len(c.lineage)+1)
	for _, b := range c.lineage {
		paths = append(paths, b.Path)
	}
	if c.source != nil {
		paths = append(paths, c.source.Path)
	}
	for _, table := range s.tables {
		if err := tx.Exec("DELETE FROM "+table.Name+" WHERE path IN ? AND start_ts = ?", paths, c.timepoint).Error; err != nil {
			s.log.Error("rollback delete failed", "table", table.Name, "error", err)
		}
		if err := tx.Exec("UPDATE "+table.Name+" SET end_ts = NULL WHERE path IN ? AND end_ts = ?", paths, c.timepoint).Error; err != nil {
			s.log.Error("rollback end reset failed", "table", table.Name, "error", err)
		}
	}
	s.log.Warn("commit rolled back", "path", c.Path(), "timepoint", c.timepoint)
}

// pruneReplaced drops replaced row ids whose ancestor version has since been
// ended on its own branch, so the exclusion list does not grow without bound.
func (s *Service) pruneReplaced(ctx dbctx.Context, branch *Branch) error {
	replaced := branch.ReplacedIDs()
	if len(replaced) == 0 {
		return nil
	}
	tx := s.tx(ctx)
	pruned := map[string][]string{}
	for table, ids := range replaced {
		var live []string
		err := tx.Raw("SELECT row_id FROM "+table+" WHERE row_id IN ? AND end_ts IS NULL", ids).Scan(&live).Error
		if err != nil {
			return fmt.Errorf("prune replaced on %s: %w", table, err)
		}
		if len(live) > 0 {
			pruned[table] = live
		}
	}
	branch.SetReplacedIDs(pruned)
	return nil
}

func (s *Service) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return s.db.WithContext(ctx.Ctx)
}

// Rebase moves the branch base up to the parent head. When the same component
// has changed on both sides since the base the rebase is rejected.
func (s *Service) Rebase(ctx dbctx.Context, path string) error {
	parentPath := ParentPath(path)
	if parentPath == "" {
		return fmt.Errorf("cannot rebase %s: %w", RootPath, errors.ErrInvalidArgument)
	}
	branch, err := s.branches.Find(ctx, path)
	if err != nil {
		return err
	}
	parent, err := s.branches.Find(ctx, parentPath)
	if err != nil {
		return err
	}
	if !branch.IsBehindParent(parent) {
		return nil
	}

	conflicts, err := s.findConflicts(ctx, branch, parent)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("components changed on both %s and %s: %s: %w",
			path, parentPath, strings.Join(conflicts, ", "), errors.ErrConflict)
	}

	commit, err := s.open(ctx, path, RebaseCommit, nil)
	if err != nil {
		return err
	}
	defer s.Close(ctx, commit)
	return s.MarkSuccessful(ctx, commit)
}

// findConflicts intersects component ids changed on the branch since its last
// promotion with ids changed on the parent since the branch base.
func (s *Service) findConflicts(ctx dbctx.Context, branch, parent *Branch) ([]string, error) {
	tx := s.tx(ctx)
	conflictSet := map[string]bool{}
	for _, table := range s.tables {
		if table.Derived {
			continue
		}
		var branchIDs []string
		err := tx.Raw("SELECT DISTINCT "+table.IDColumn+" FROM "+table.Name+" WHERE path = ? AND start_ts > ?",
			branch.Path, branch.LastPromotionTS).Scan(&branchIDs).Error
		if err != nil {
			return nil, fmt.Errorf("conflict scan %s: %w", table.Name, err)
		}
		if len(branchIDs) == 0 {
			continue
		}
		var both []string
		err = tx.Raw("SELECT DISTINCT "+table.IDColumn+" FROM "+table.Name+
			" WHERE path = ? AND start_ts > ? AND start_ts <= ? AND "+table.IDColumn+" IN ?",
			parent.Path, branch.BaseTS, parent.HeadTS, branchIDs).Scan(&both).Error
		if err != nil {
			return nil, fmt.Errorf("conflict scan %s: %w", table.Name, err)
		}
		for _, id := range both {
			conflictSet[id] = true
		}
	}
	conflicts := make([]string, 0, len(conflictSet))
	for id := range conflictSet {
		conflicts = append(conflicts, id)
	}
	sort.Strings(conflicts)
	return conflicts, nil
}

// Promote moves the branch's own versions onto the parent in one promotion
// commit. The branch must not be behind its parent.
func (s *Service) Promote(ctx dbctx.Context, path string) error {
	parentPath := ParentPath(path)
	if parentPath == "" {
		return fmt.Errorf("cannot promote %s: %w", RootPath, errors.ErrInvalidArgument)
	}
	branch, err := s.branches.Find(ctx, path)
	if err != nil {
		return err
	}
	parent, err := s.branches.Find(ctx, parentPath)
	if err != nil {
		return err
	}
	if branch.IsBehindParent(parent) {
		return fmt.Errorf("branch %s is behind %s, rebase first: %w", path, parentPath, errors.ErrConflict)
	}

	// Parent first: the parent path sorts before the child, which keeps the
	// lock order consistent with concurrent promotions in the same lineage.
	srcMu := s.branchLock(path)
	commit, err := s.open(ctx, parentPath, PromotionCommit, branch)
	if err != nil {
		return err
	}
	srcMu.Lock()
	defer srcMu.Unlock()
	defer s.Close(ctx, commit)

	branch.Locked = true
	branch.LockMessage = "being promoted to " + parentPath
	if err := s.branches.Save(ctx, branch); err != nil {
		return err
	}

	tx := s.tx(ctx)
	tp := commit.Timepoint()
	for _, table := range s.tables {
		if table.Derived {
			continue
		}
		err := tx.Exec("UPDATE "+table.Name+" SET path = ?, start_ts = ? WHERE path = ? AND end_ts IS NULL",
			parentPath, tp, path).Error
		if err != nil {
			return fmt.Errorf("promote move %s: %w", table.Name, err)
		}
	}

	// Replaced ancestor rows that live on the parent are now truly
	// superseded there and get end stamped; rows on higher ancestors move
	// into the parent's own replaced set.
	for table, ids := range branch.ReplacedIDs() {
		var onParent []string
		err := tx.Raw("SELECT row_id FROM "+table+" WHERE row_id IN ? AND path = ?", ids, parentPath).Scan(&onParent).Error
		if err != nil {
			return fmt.Errorf("promote replaced scan %s: %w", table, err)
		}
		if len(onParent) > 0 {
			err = tx.Exec("UPDATE "+table+" SET end_ts = ? WHERE row_id IN ?", tp, onParent).Error
			if err != nil {
				return fmt.Errorf("promote end stamp %s: %w", table, err)
			}
		}
		onParentSet := map[string]bool{}
		for _, id := range onParent {
			onParentSet[id] = true
		}
		for _, id := range ids {
			if !onParentSet[id] {
				commit.AddVersionsReplaced(table, id)
			}
		}
	}
	commit.branch.MergeReplacedIDs(commit.VersionsReplaced())

	return s.MarkSuccessful(ctx, commit)
}

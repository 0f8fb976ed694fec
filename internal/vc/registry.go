package vc

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
)

// Registry is the branch store. All reads and writes go through the
// transaction carried in the context when one is present.
type Registry interface {
	Create(ctx dbctx.Context, path string) (*Branch, error)
	Find(ctx dbctx.Context, path string) (*Branch, error)
	Exists(ctx dbctx.Context, path string) (bool, error)
	FindChildren(ctx dbctx.Context, path string, immediateOnly bool) ([]*Branch, error)
	Lineage(ctx dbctx.Context, path string) ([]*Branch, error)
	Save(ctx dbctx.Context, b *Branch) error
	UpdateMetadata(ctx dbctx.Context, path string, metadata map[string]any) (*Branch, error)
	DeleteAll(ctx dbctx.Context) error

	Criteria(ctx dbctx.Context, path string) (*BranchCriteria, error)
	CriteriaAtTimepoint(ctx dbctx.Context, path string, timepoint int64) (*BranchCriteria, error)
}

type registry struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRegistry(db *gorm.DB, baseLog *logger.Logger) Registry {
	return &registry{db: db, log: baseLog.With("repo", "Branch")}
}

func (r *registry) tx(ctx dbctx.Context) *gorm.DB {
	if ctx.Tx != nil {
		return ctx.Tx.WithContext(ctx.Ctx)
	}
	return r.db.WithContext(ctx.Ctx)
}

func (r *registry) Create(ctx dbctx.Context, path string) (*Branch, error) {
	if !IsValidPath(path) {
		return nil, fmt.Errorf("branch path %q: %w", path, errors.ErrInvalidArgument)
	}
	exists, err := r.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("branch %s already exists: %w", path, errors.ErrConflict)
	}

	now := time.Now().UnixMilli()
	b := &Branch{
		BranchID:   uuid.NewString(),
		Path:       path,
		BaseTS:     now,
		HeadTS:     now,
		CreationTS: now,
	}
	if parentPath := ParentPath(path); parentPath != "" {
		parent, err := r.Find(ctx, parentPath)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return nil, fmt.Errorf("parent branch %s does not exist: %w", parentPath, errors.ErrNotFound)
			}
			return nil, err
		}
		b.BaseTS = parent.HeadTS
		b.HeadTS = parent.HeadTS
	}

	if err := r.tx(ctx).Create(b).Error; err != nil {
		r.log.Error("create branch failed", "path", path, "error", err)
		return nil, fmt.Errorf("create branch: %w", err)
	}
	r.log.Info("branch created", "path", path, "base", b.BaseTS)
	return b, nil
}

func (r *registry) Find(ctx dbctx.Context, path string) (*Branch, error) {
	var b Branch
	err := r.tx(ctx).Where("path = ?", path).First(&b).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("branch %s: %w", path, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("find branch %s: %w", path, err)
	}
	return &b, nil
}

func (r *registry) Exists(ctx dbctx.Context, path string) (bool, error) {
	var count int64
	if err := r.tx(ctx).Model(&Branch{}).Where("path = ?", path).Count(&count).Error; err != nil {
		return false, fmt.Errorf("branch exists %s: %w", path, err)
	}
	return count > 0, nil
}

func (r *registry) FindChildren(ctx dbctx.Context, path string, immediateOnly bool) ([]*Branch, error) {
	var children []*Branch
	q := r.tx(ctx).Where("path LIKE ?", escapeLike(path)+"/%").Order("path")
	if err := q.Find(&children).Error; err != nil {
		return nil, fmt.Errorf("find children of %s: %w", path, err)
	}
	if !immediateOnly {
		return children, nil
	}
	depth := strings.Count(path, "/") + 1
	var out []*Branch
	for _, c := range children {
		if strings.Count(c.Path, "/") == depth {
			out = append(out, c)
		}
	}
	return out, nil
}

// Lineage returns the branch and every ancestor, ordered branch first.
func (r *registry) Lineage(ctx dbctx.Context, path string) ([]*Branch, error) {
	var lineage []*Branch
	for p := path; p != ""; p = ParentPath(p) {
		b, err := r.Find(ctx, p)
		if err != nil {
			return nil, err
		}
		lineage = append(lineage, b)
	}
	return lineage, nil
}

func (r *registry) Save(ctx dbctx.Context, b *Branch) error {
	if err := r.tx(ctx).Save(b).Error; err != nil {
		r.log.Error("save branch failed", "path", b.Path, "error", err)
		return fmt.Errorf("save branch %s: %w", b.Path, err)
	}
	return nil
}

func (r *registry) UpdateMetadata(ctx dbctx.Context, path string, metadata map[string]any) (*Branch, error) {
	b, err := r.Find(ctx, path)
	if err != nil {
		return nil, err
	}
	b.Metadata = metadata
	if err := r.Save(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *registry) DeleteAll(ctx dbctx.Context) error {
	if err := r.tx(ctx).Where("1 = 1").Delete(&Branch{}).Error; err != nil {
		return fmt.Errorf("delete all branches: %w", err)
	}
	r.log.Warn("all branches deleted")
	return nil
}

func (r *registry) Criteria(ctx dbctx.Context, path string) (*BranchCriteria, error) {
	lineage, err := r.Lineage(ctx, path)
	if err != nil {
		return nil, err
	}
	return buildCriteria(lineage, lineage[0].HeadTS, nil), nil
}

// CriteriaAtTimepoint reads the branch as of an arbitrary timepoint at or
// before head. Ancestor views stay capped at the branch base.
func (r *registry) CriteriaAtTimepoint(ctx dbctx.Context, path string, timepoint int64) (*BranchCriteria, error) {
	lineage, err := r.Lineage(ctx, path)
	if err != nil {
		return nil, err
	}
	if timepoint > lineage[0].HeadTS {
		return nil, fmt.Errorf("timepoint %d is ahead of branch %s head: %w", timepoint, path, errors.ErrInvalidArgument)
	}
	return buildCriteria(lineage, timepoint, nil), nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

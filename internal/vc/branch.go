package vc

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

// RootPath is the ancestor of every branch.
const RootPath = "MAIN"

// Branch is the registry row for one branch. Base and Head are timepoints in
// epoch milliseconds. VersionsReplaced maps a component table name to the
// row ids of ancestor versions this branch has superseded; those rows are
// excluded when reading through the branch.
type Branch struct {
	BranchID string `gorm:"column:branch_id;type:uuid;primaryKey" json:"-"`
	Path     string `gorm:"column:path;not null;uniqueIndex" json:"path"`

	BaseTS     int64 `gorm:"column:base_ts;not null" json:"base"`
	HeadTS     int64 `gorm:"column:head_ts;not null" json:"head"`
	CreationTS int64 `gorm:"column:creation_ts;not null" json:"creation"`

	// LastPromotionTS is zero until the branch is first promoted.
	LastPromotionTS int64 `gorm:"column:last_promotion_ts;not null;default:0" json:"lastPromotion,omitempty"`

	// ContainsContent is set while the branch carries versions of its own,
	// cleared again on promotion.
	ContainsContent bool `gorm:"column:contains_content;not null;default:false" json:"containsContent"`

	VersionsReplaced datatypes.JSON    `gorm:"column:versions_replaced" json:"-"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`

	// Lock state for the single-writer commit protocol.
	Locked      bool   `gorm:"column:locked;not null;default:false" json:"locked"`
	LockMessage string `gorm:"column:lock_message" json:"lockMessage,omitempty"`
}

func (Branch) TableName() string { return "branch" }

func (b *Branch) IsRoot() bool { return b.Path == RootPath }

// ParentPath returns the path one level up, or "" for the root.
func (b *Branch) ParentPath() string { return ParentPath(b.Path) }

func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// IsValidPath accepts MAIN and slash-separated child paths of non-empty
// segments without whitespace.
func IsValidPath(path string) bool {
	if path == "" {
		return false
	}
	segments := strings.Split(path, "/")
	if segments[0] != RootPath {
		return false
	}
	for _, s := range segments {
		if s == "" || strings.ContainsAny(s, " \t\n") {
			return false
		}
	}
	return true
}

// IsBehindParent reports whether the parent head has moved past this
// branch's base, meaning a rebase would bring in new ancestor content.
func (b *Branch) IsBehindParent(parent *Branch) bool {
	return parent != nil && parent.HeadTS > b.BaseTS
}

func (b *Branch) ReplacedIDs() map[string][]string {
	if len(b.VersionsReplaced) == 0 {
		return map[string][]string{}
	}
	out := map[string][]string{}
	if err := json.Unmarshal(b.VersionsReplaced, &out); err != nil {
		return map[string][]string{}
	}
	return out
}

func (b *Branch) SetReplacedIDs(replaced map[string][]string) {
	if len(replaced) == 0 {
		b.VersionsReplaced = nil
		return
	}
	raw, _ := json.Marshal(replaced)
	b.VersionsReplaced = datatypes.JSON(raw)
}

// MergeReplacedIDs folds additional replaced row ids into the stored map,
// deduplicating per table.
func (b *Branch) MergeReplacedIDs(extra map[string][]string) {
	if len(extra) == 0 {
		return
	}
	merged := b.ReplacedIDs()
	for table, ids := range extra {
		seen := map[string]bool{}
		for _, id := range merged[table] {
			seen[id] = true
		}
		for _, id := range ids {
			if !seen[id] {
				merged[table] = append(merged[table], id)
				seen[id] = true
			}
		}
	}
	b.SetReplacedIDs(merged)
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Versioned is the envelope carried by every stored component row. A component
// version is visible on a branch at timepoint t when start_ts <= t and end_ts
// is either unset or greater than t, subject to the branch criteria.
type Versioned struct {
	RowID   string `gorm:"column:row_id;type:uuid;primaryKey" json:"-"`
	Path    string `gorm:"column:path;not null;index" json:"path"`
	StartTS int64  `gorm:"column:start_ts;not null;index" json:"start"`
	EndTS   *int64 `gorm:"column:end_ts;index" json:"end,omitempty"`

	Active        bool   `gorm:"column:active;not null" json:"active"`
	ModuleID      string `gorm:"column:module_id;not null" json:"moduleId"`
	EffectiveTime *int   `gorm:"column:effective_time" json:"effectiveTime,omitempty"`
	Released      bool   `gorm:"column:released;not null;default:false" json:"released"`
	ReleaseHash   string `gorm:"column:release_hash" json:"-"`

	// Tombstone row. A deleted version shadows ancestor versions without
	// representing content.
	Deleted bool `gorm:"column:deleted;not null;default:false" json:"-"`

	// Commit-scoped flags, never persisted.
	Changed  bool `gorm:"-" json:"-"`
	Creating bool `gorm:"-" json:"-"`
}

func (v *Versioned) Env() *Versioned { return v }

func (v *Versioned) MarkChanged() { v.Changed = true }

func (v *Versioned) MarkDeleted() {
	v.Deleted = true
	v.Changed = true
}

func (v *Versioned) IsReleased() bool { return v.Released }

// SnomedComponent is the small dispatch surface shared by Concept,
// Description, Relationship and ReferenceSetMember.
type SnomedComponent interface {
	ID() string
	Env() *Versioned
	// ReleaseHash hashes the field subset frozen by a release.
	ReleaseHash() string
	// IsComponentChanged reports whether any user field differs from the
	// existing version. A nil existing component is always a change.
	IsComponentChanged(existing SnomedComponent) bool
	MarkChanged()
	MarkDeleted()
	IsReleased() bool
}

// CopyReleaseDetails carries release state forward from the existing version.
func CopyReleaseDetails(c, existing SnomedComponent) {
	if existing == nil {
		ClearReleaseDetails(c)
		return
	}
	env, old := c.Env(), existing.Env()
	env.Released = old.Released
	env.ReleaseHash = old.ReleaseHash
	env.EffectiveTime = old.EffectiveTime
}

// ClearReleaseDetails resets release state on a newly created component.
func ClearReleaseDetails(c SnomedComponent) {
	env := c.Env()
	env.Released = false
	env.ReleaseHash = ""
	env.EffectiveTime = nil
}

// UpdateEffectiveTime clears the effective time when the component is not
// released or when a released component has drifted from its released field
// values. It does not restore a cleared effective time when the fields are set
// back: the version keeps the effective time it already carries, if any.
func UpdateEffectiveTime(c SnomedComponent) {
	env := c.Env()
	if !env.Released {
		env.EffectiveTime = nil
		return
	}
	if env.ReleaseHash != c.ReleaseHash() {
		env.EffectiveTime = nil
	}
}

// BuildReleaseState stamps a version as released at the given effective time.
func BuildReleaseState(c SnomedComponent, effectiveTime int) {
	env := c.Env()
	env.Released = true
	env.ReleaseHash = c.ReleaseHash()
	env.EffectiveTime = &effectiveTime
}

func hashFields(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

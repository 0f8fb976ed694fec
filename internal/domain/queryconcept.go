package domain

import (
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
)

// QueryConcept is one semantic-index row: the transitive closure of a concept
// on a branch in one form. Rows are versioned like components so the index is
// read through the same branch criteria as content.
type QueryConcept struct {
	Versioned

	ConceptID string         `gorm:"column:concept_id;not null;index" json:"conceptId"`
	Stated    bool           `gorm:"column:stated;not null;index" json:"stated"`
	Parents   datatypes.JSON `gorm:"column:parents" json:"parents"`
	Ancestors datatypes.JSON `gorm:"column:ancestors" json:"ancestors"`
}

func (QueryConcept) TableName() string { return "query_concept" }

func (q *QueryConcept) ID() string { return q.ConceptID }

func (q *QueryConcept) ParentIDs() []string  { return decodeIDSet(q.Parents) }
func (q *QueryConcept) AncestorIDs() []string { return decodeIDSet(q.Ancestors) }

func (q *QueryConcept) SetParents(ids []string)   { q.Parents = encodeIDSet(ids) }
func (q *QueryConcept) SetAncestors(ids []string) { q.Ancestors = encodeIDSet(ids) }

// ReleaseHash exists to satisfy SnomedComponent; index rows are never part of
// a release.
func (q *QueryConcept) ReleaseHash() string {
	return hashFields(q.ConceptID, boolStr(q.Stated))
}

func (q *QueryConcept) IsComponentChanged(existing SnomedComponent) bool {
	other, ok := existing.(*QueryConcept)
	if !ok || other == nil {
		return true
	}
	return q.Stated != other.Stated ||
		!equalIDSets(q.ParentIDs(), other.ParentIDs()) ||
		!equalIDSets(q.AncestorIDs(), other.AncestorIDs())
}

func encodeIDSet(ids []string) datatypes.JSON {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	b, _ := json.Marshal(sorted)
	return datatypes.JSON(b)
}

func decodeIDSet(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}

func equalIDSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Additional-field keys used by the well-known refset patterns.
const (
	FieldAcceptabilityID         = "acceptabilityId"
	FieldValueID                 = "valueId"
	FieldTargetComponentID       = "targetComponentId"
	FieldOwlExpression           = "owlExpression"
	FieldMapTarget               = "mapTarget"
)

// ReferenceSetMember is one row of any reference set. ConceptID is a
// denormalized back-reference to the concept the member ultimately belongs
// to, filled in before persistence so members can be joined per concept.
type ReferenceSetMember struct {
	Versioned

	MemberID              string `gorm:"column:member_id;not null;index" json:"memberId"`
	RefsetID              string `gorm:"column:refset_id;not null;index" json:"refsetId"`
	ReferencedComponentID string `gorm:"column:referenced_component_id;not null;index" json:"referencedComponentId"`
	ConceptID             string `gorm:"column:concept_id;index" json:"-"`

	AdditionalFields datatypes.JSONMap `gorm:"column:additional_fields" json:"additionalFields,omitempty"`
}

func (ReferenceSetMember) TableName() string { return "reference_set_member" }

// NewReferenceSetMember builds an active member with a fresh UUID.
func NewReferenceSetMember(moduleID, refsetID, referencedComponentID string) *ReferenceSetMember {
	m := &ReferenceSetMember{
		MemberID:              uuid.NewString(),
		RefsetID:              refsetID,
		ReferencedComponentID: referencedComponentID,
	}
	m.ModuleID = moduleID
	m.Active = true
	return m
}

func (m *ReferenceSetMember) ID() string { return m.MemberID }

func (m *ReferenceSetMember) AdditionalField(name string) string {
	if m.AdditionalFields == nil {
		return ""
	}
	if v, ok := m.AdditionalFields[name].(string); ok {
		return v
	}
	return ""
}

func (m *ReferenceSetMember) SetAdditionalField(name, value string) *ReferenceSetMember {
	if m.AdditionalFields == nil {
		m.AdditionalFields = datatypes.JSONMap{}
	}
	m.AdditionalFields[name] = value
	return m
}

func (m *ReferenceSetMember) ReleaseHash() string {
	fields := []string{boolStr(m.Active), m.ModuleID, m.RefsetID, m.ReferencedComponentID}
	fields = append(fields, m.sortedAdditionalFields()...)
	return hashFields(fields...)
}

func (m *ReferenceSetMember) sortedAdditionalFields() []string {
	if len(m.AdditionalFields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.AdditionalFields))
	for k := range m.AdditionalFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := m.AdditionalFields[k].(string)
		out = append(out, k+"="+v)
	}
	return out
}

func (m *ReferenceSetMember) IsComponentChanged(existing SnomedComponent) bool {
	other, ok := existing.(*ReferenceSetMember)
	if !ok || other == nil {
		return true
	}
	return m.Active != other.Active ||
		m.ModuleID != other.ModuleID ||
		m.RefsetID != other.RefsetID ||
		m.ReferencedComponentID != other.ReferencedComponentID ||
		!equalAdditionalFields(m.AdditionalFields, other.AdditionalFields)
}

func equalAdditionalFields(a, b datatypes.JSONMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bs, _ := b[k].(string)
		as, _ := av.(string)
		if as != bs {
			return false
		}
	}
	return true
}

// IsDescriptionID reports whether a component id is a description id by its
// partition digit (second from the right).
func IsDescriptionID(componentID string) bool {
	return partitionKind(componentID) == '1'
}

// IsConceptID reports whether a component id carries the concept partition.
func IsConceptID(componentID string) bool {
	return partitionKind(componentID) == '0'
}

func partitionKind(componentID string) byte {
	if len(componentID) < 3 || strings.Contains(componentID, "-") {
		return 0
	}
	return componentID[len(componentID)-2]
}

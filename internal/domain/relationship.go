package domain

// Relationship is a triple between concepts. Stated relationships are derived
// from axioms; inferred ones are written by the classifier integration.
type Relationship struct {
	Versioned

	RelationshipID       string `gorm:"column:relationship_id;not null;index" json:"relationshipId"`
	SourceID             string `gorm:"column:source_id;index" json:"sourceId"`
	DestinationID        string `gorm:"column:destination_id;index" json:"destinationId"`
	TypeID               string `gorm:"column:type_id;index" json:"typeId"`
	RelationshipGroup    int    `gorm:"column:relationship_group;not null;default:0" json:"groupId"`
	CharacteristicTypeID string `gorm:"column:characteristic_type_id;not null" json:"characteristicTypeId"`
	ModifierID           string `gorm:"column:modifier_id;not null" json:"modifierId"`
}

func (Relationship) TableName() string { return "relationship" }

// NewRelationship builds an active stated relationship triple, the shape
// axioms carry.
func NewRelationship(typeID, destinationID string) *Relationship {
	r := &Relationship{
		TypeID:               typeID,
		DestinationID:        destinationID,
		CharacteristicTypeID: StatedRelationship,
		ModifierID:           ExistentialRestrictionModifier,
	}
	r.Active = true
	return r
}

func (r *Relationship) WithGroup(group int) *Relationship {
	r.RelationshipGroup = group
	return r
}

func (r *Relationship) ID() string { return r.RelationshipID }

func (r *Relationship) ReleaseHash() string {
	return hashFields(boolStr(r.Active), r.ModuleID, r.SourceID, r.DestinationID,
		r.TypeID, itoa(r.RelationshipGroup), r.CharacteristicTypeID, r.ModifierID)
}

func (r *Relationship) IsComponentChanged(existing SnomedComponent) bool {
	other, ok := existing.(*Relationship)
	if !ok || other == nil {
		return true
	}
	return r.Active != other.Active ||
		r.ModuleID != other.ModuleID ||
		r.SourceID != other.SourceID ||
		r.DestinationID != other.DestinationID ||
		r.TypeID != other.TypeID ||
		r.RelationshipGroup != other.RelationshipGroup ||
		r.CharacteristicTypeID != other.CharacteristicTypeID ||
		r.ModifierID != other.ModifierID
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

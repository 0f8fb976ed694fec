package domain

// Description is one term of a concept in a language. The acceptability map
// and language refset members are transient views over the language refset
// side table, keyed by language refset id.
type Description struct {
	Versioned

	DescriptionID      string `gorm:"column:description_id;not null;index" json:"descriptionId"`
	ConceptID          string `gorm:"column:concept_id;index" json:"conceptId"`
	Term               string `gorm:"column:term;not null" json:"term"`
	LanguageCode       string `gorm:"column:language_code;not null" json:"lang"`
	TypeID             string `gorm:"column:type_id;not null" json:"typeId"`
	CaseSignificanceID string `gorm:"column:case_significance_id;not null" json:"caseSignificanceId"`

	// AcceptabilityMap maps languageRefsetId to an acceptability name from
	// DescriptionAcceptabilityNames.
	AcceptabilityMap map[string]string `gorm:"-" json:"acceptabilityMap,omitempty"`

	LangRefsetMembers map[string]*ReferenceSetMember `gorm:"-" json:"-"`

	InactivationIndicator       string                `gorm:"-" json:"inactivationIndicator,omitempty"`
	InactivationIndicatorMember *ReferenceSetMember   `gorm:"-" json:"-"`
	AssociationTargets          map[string][]string   `gorm:"-" json:"associationTargets,omitempty"`
	AssociationTargetMembers    []*ReferenceSetMember `gorm:"-" json:"-"`
}

func (Description) TableName() string { return "description" }

func (d *Description) ID() string { return d.DescriptionID }

func (d *Description) ReleaseHash() string {
	return hashFields(boolStr(d.Active), d.ModuleID, d.ConceptID, d.Term,
		d.LanguageCode, d.TypeID, d.CaseSignificanceID)
}

func (d *Description) IsComponentChanged(existing SnomedComponent) bool {
	other, ok := existing.(*Description)
	if !ok || other == nil {
		return true
	}
	return d.Active != other.Active ||
		d.ModuleID != other.ModuleID ||
		d.ConceptID != other.ConceptID ||
		d.Term != other.Term ||
		d.LanguageCode != other.LanguageCode ||
		d.TypeID != other.TypeID ||
		d.CaseSignificanceID != other.CaseSignificanceID
}

func (d *Description) AddLangRefsetMember(member *ReferenceSetMember) {
	if d.LangRefsetMembers == nil {
		d.LangRefsetMembers = map[string]*ReferenceSetMember{}
	}
	d.LangRefsetMembers[member.RefsetID] = member
}

func (d *Description) ClearLanguageRefsetMembers() {
	d.AcceptabilityMap = nil
}

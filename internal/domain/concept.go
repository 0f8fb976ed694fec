package domain

// Concept is the root of the authoring aggregate. The child collections are
// transient: they are persisted through their own tables and re-joined on
// read by conceptId.
type Concept struct {
	Versioned

	ConceptID          string `gorm:"column:concept_id;not null;index" json:"conceptId"`
	DefinitionStatusID string `gorm:"column:definition_status_id;not null" json:"definitionStatusId"`

	Descriptions  []*Description  `gorm:"-" json:"descriptions,omitempty"`
	Relationships []*Relationship `gorm:"-" json:"relationships,omitempty"`
	ClassAxioms   []*Axiom        `gorm:"-" json:"classAxioms,omitempty"`
	GCIAxioms     []*Axiom        `gorm:"-" json:"gciAxioms,omitempty"`

	InactivationIndicator string              `gorm:"-" json:"inactivationIndicator,omitempty"`
	AssociationTargets    map[string][]string `gorm:"-" json:"associationTargets,omitempty"`

	InactivationIndicatorMember *ReferenceSetMember   `gorm:"-" json:"-"`
	AssociationTargetMembers    []*ReferenceSetMember `gorm:"-" json:"-"`
}

func (Concept) TableName() string { return "concept" }

func (c *Concept) ID() string { return c.ConceptID }

func (c *Concept) ReleaseHash() string {
	return hashFields(boolStr(c.Active), c.ModuleID, c.DefinitionStatusID)
}

func (c *Concept) IsComponentChanged(existing SnomedComponent) bool {
	other, ok := existing.(*Concept)
	if !ok || other == nil {
		return true
	}
	return c.Active != other.Active ||
		c.ModuleID != other.ModuleID ||
		c.DefinitionStatusID != other.DefinitionStatusID
}

// AllOwlAxiomMembers collects the refset member projection of the concept's
// class and GCI axioms. Populated by the axiom converter before persistence.
func (c *Concept) AllOwlAxiomMembers() []*ReferenceSetMember {
	var members []*ReferenceSetMember
	for _, axiom := range c.ClassAxioms {
		if axiom.Member != nil {
			members = append(members, axiom.Member)
		}
	}
	for _, axiom := range c.GCIAxioms {
		if axiom.Member != nil {
			members = append(members, axiom.Member)
		}
	}
	return members
}

func (c *Concept) AddAxiom(axiom *Axiom) *Concept {
	c.ClassAxioms = append(c.ClassAxioms, axiom)
	return c
}

func (c *Concept) AddDescription(description *Description) *Concept {
	c.Descriptions = append(c.Descriptions, description)
	return c
}

func (c *Concept) AddRelationship(relationship *Relationship) *Concept {
	c.Relationships = append(c.Relationships, relationship)
	return c
}

// Axiom is the authoring view of one OWL axiom: a definition status plus the
// relationship triples it expresses. It is stored as an OWL-axiom refset
// member and never has a table of its own.
type Axiom struct {
	AxiomID            string          `json:"axiomId,omitempty"`
	ModuleID           string          `json:"moduleId,omitempty"`
	Active             bool            `json:"active"`
	Released           bool            `json:"released"`
	DefinitionStatusID string          `json:"definitionStatusId,omitempty"`
	Relationships      []*Relationship `json:"relationships,omitempty"`

	// Member is the refset-member projection, populated by the converter.
	Member *ReferenceSetMember `json:"-"`
}

func NewAxiom(definitionStatusID string, relationships ...*Relationship) *Axiom {
	return &Axiom{
		Active:             true,
		DefinitionStatusID: definitionStatusID,
		Relationships:      relationships,
	}
}

func (a *Axiom) SetModuleID(moduleID string) *Axiom {
	a.ModuleID = moduleID
	return a
}

package members

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
)

// Type describes the additional fields a reference set pattern carries.
type Type struct {
	Name     string   `yaml:"name"`
	RefsetID string   `yaml:"refsetId"`
	Fields   []string `yaml:"fields"`
}

type typesFile struct {
	RefsetTypes []Type `yaml:"refsetTypes"`
}

// TypeRegistry validates member additional fields against the configured
// reference set patterns. Refsets without a configured type accept any
// fields.
type TypeRegistry struct {
	byID map[string]Type
}

// DefaultTypes covers the patterns the core itself writes.
func DefaultTypes() []Type {
	return []Type{
		{Name: "OWLAxiom", RefsetID: domain.OWLAxiomRefset, Fields: []string{domain.FieldOwlExpression}},
		{Name: "Language-US", RefsetID: domain.USEnglishLanguageRefset, Fields: []string{domain.FieldAcceptabilityID}},
		{Name: "Language-GB", RefsetID: domain.GBEnglishLanguageRefset, Fields: []string{domain.FieldAcceptabilityID}},
		{Name: "ConceptInactivationIndicator", RefsetID: domain.ConceptInactivationIndicatorRefset, Fields: []string{domain.FieldValueID}},
		{Name: "DescriptionInactivationIndicator", RefsetID: domain.DescriptionInactivationIndicatorRefset, Fields: []string{domain.FieldValueID}},
	}
}

// LoadTypeRegistry reads refset type configuration from a yaml file and
// merges it over the built-in defaults. An empty path keeps defaults only.
func LoadTypeRegistry(path string, log *logger.Logger) (*TypeRegistry, error) {
	registry := &TypeRegistry{byID: map[string]Type{}}
	for _, t := range DefaultTypes() {
		registry.byID[t.RefsetID] = t
	}
	registry.registerAssociations()
	if path == "" {
		return registry, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("refset type config not found, using defaults", "path", path)
			return registry, nil
		}
		return nil, fmt.Errorf("read refset types %s: %w", path, err)
	}
	var file typesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse refset types %s: %w", path, err)
	}
	for _, t := range file.RefsetTypes {
		registry.byID[t.RefsetID] = t
	}
	log.Info("refset types loaded", "path", path, "count", len(registry.byID))
	return registry, nil
}

// Association refsets take a target component; register them so their fields
// validate.
func (r *TypeRegistry) registerAssociations() {
	for name, refsetID := range domain.AssociationRefsetIDByName {
		if _, exists := r.byID[refsetID]; !exists {
			r.byID[refsetID] = Type{Name: name, RefsetID: refsetID, Fields: []string{domain.FieldTargetComponentID}}
		}
	}
}

func (r *TypeRegistry) Lookup(refsetID string) (Type, bool) {
	t, ok := r.byID[refsetID]
	return t, ok
}

// Validate rejects members carrying fields outside their refset pattern.
func (r *TypeRegistry) Validate(member *domain.ReferenceSetMember) error {
	t, ok := r.byID[member.RefsetID]
	if !ok {
		return nil
	}
	allowed := map[string]bool{}
	for _, f := range t.Fields {
		allowed[f] = true
	}
	for field := range member.AdditionalFields {
		if !allowed[field] {
			return fmt.Errorf("field %s not valid for %s member: %w", field, t.Name, errors.ErrInvalidArgument)
		}
	}
	return nil
}

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&vc.Branch{},

		&domain.Concept{},
		&domain.Description{},
		&domain.Relationship{},
		&domain.ReferenceSetMember{},
		&domain.QueryConcept{},
	)
}

// EnsureComponentIndexes creates the visibility-scan indexes. Every read
// filters on (path, start_ts, end_ts) plus the component id column.
func EnsureComponentIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_concept_visibility ON concept (path, start_ts, end_ts);`,
		`CREATE INDEX IF NOT EXISTS idx_concept_id ON concept (concept_id);`,
		`CREATE INDEX IF NOT EXISTS idx_description_visibility ON description (path, start_ts, end_ts);`,
		`CREATE INDEX IF NOT EXISTS idx_description_concept ON description (concept_id);`,
		`CREATE INDEX IF NOT EXISTS idx_relationship_visibility ON relationship (path, start_ts, end_ts);`,
		`CREATE INDEX IF NOT EXISTS idx_relationship_source ON relationship (source_id);`,
		`CREATE INDEX IF NOT EXISTS idx_relationship_destination ON relationship (destination_id, type_id);`,
		`CREATE INDEX IF NOT EXISTS idx_member_visibility ON reference_set_member (path, start_ts, end_ts);`,
		`CREATE INDEX IF NOT EXISTS idx_member_referenced ON reference_set_member (referenced_component_id);`,
		`CREATE INDEX IF NOT EXISTS idx_member_refset ON reference_set_member (refset_id);`,
		`CREATE INDEX IF NOT EXISTS idx_query_concept_visibility ON query_concept (path, start_ts, end_ts);`,
		`CREATE INDEX IF NOT EXISTS idx_query_concept_id ON query_concept (concept_id, stated);`,
		`CREATE INDEX IF NOT EXISTS idx_query_concept_ancestors ON query_concept USING GIN (ancestors);`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureComponentIndexes(s.db); err != nil {
		s.log.Error("Component index migration failed", "error", err)
		return err
	}
	return nil
}

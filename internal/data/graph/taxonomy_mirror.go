package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// TaxonomyMirror pushes inferred ISA edges touched by each commit into neo4j
// so graph tooling can walk the hierarchy per branch. Mirror failures are
// logged, never surfaced; the relational store stays the source of truth.
type TaxonomyMirror struct {
	client *neo4jdb.Client
	db     *gorm.DB
	log    *logger.Logger
}

func NewTaxonomyMirror(client *neo4jdb.Client, db *gorm.DB, baseLog *logger.Logger) *TaxonomyMirror {
	return &TaxonomyMirror{
		client: client,
		db:     db,
		log:    baseLog.With("service", "TaxonomyMirror"),
	}
}

type isaEdge struct {
	SourceID      string
	DestinationID string
	Active        bool
	EndTS         *int64
}

func (m *TaxonomyMirror) PreCommitCompletion(ctx dbctx.Context, commit *vc.Commit) error {
	if m == nil || m.client == nil || m.client.Driver == nil {
		return nil
	}

	tx := m.db
	if ctx.Tx != nil {
		tx = ctx.Tx
	}
	var edges []isaEdge
	err := tx.WithContext(ctx.Ctx).Raw(
		"SELECT source_id, destination_id, active, end_ts FROM relationship"+
			" WHERE path = ? AND characteristic_type_id = ? AND type_id = ?"+
			" AND (start_ts = ? OR end_ts = ?)",
		commit.Path(), domain.InferredRelationship, domain.ISA,
		commit.Timepoint(), commit.Timepoint()).Scan(&edges).Error
	if err != nil {
		m.log.Warn("taxonomy mirror scan failed", "path", commit.Path(), "error", err)
		return nil
	}
	if len(edges) == 0 {
		return nil
	}

	var merges, deletes []map[string]any
	for _, e := range edges {
		row := map[string]any{
			"path":        commit.Path(),
			"source":      e.SourceID,
			"destination": e.DestinationID,
		}
		if e.Active && e.EndTS == nil {
			merges = append(merges, row)
		} else {
			deletes = append(deletes, row)
		}
	}

	session := m.client.Driver.NewSession(ctx.Ctx, neo4j.SessionConfig{DatabaseName: m.client.Database})
	defer session.Close(ctx.Ctx)

	_, err = session.ExecuteWrite(ctx.Ctx, func(work neo4j.ManagedTransaction) (any, error) {
		if len(merges) > 0 {
			_, err := work.Run(ctx.Ctx,
				`UNWIND $edges AS e
				 MERGE (s:Concept {conceptId: e.source, path: e.path})
				 MERGE (d:Concept {conceptId: e.destination, path: e.path})
				 MERGE (s)-[:ISA]->(d)`,
				map[string]any{"edges": merges})
			if err != nil {
				return nil, err
			}
		}
		if len(deletes) > 0 {
			_, err := work.Run(ctx.Ctx,
				`UNWIND $edges AS e
				 MATCH (s:Concept {conceptId: e.source, path: e.path})-[r:ISA]->(d:Concept {conceptId: e.destination, path: e.path})
				 DELETE r`,
				map[string]any{"edges": deletes})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		m.log.Warn("taxonomy mirror write failed", "path", commit.Path(), "edges", len(edges), "error", err)
		return nil
	}
	m.log.Debug("taxonomy mirrored", "path", commit.Path(), "merged", len(merges), "removed", len(deletes))
	return nil
}

// Package graphsync mirrors the approved knowledge graph into Neo4j for
// traversal queries. PostgreSQL stays the source of truth; the mirror is
// updated after each committed review decision and can be rebuilt from a
// projection at any time.
package graphsync

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/config"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const connectTimeout = 10 * time.Second

// NewDriver opens a Neo4j driver and verifies connectivity.
func NewDriver(ctx context.Context, cfg *config.Neo4jConfig) (neo4j.DriverWithContext, error) {
	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		c.SocketConnectTimeout = connectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

// Mirror writes approved merges to Neo4j.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
	now      func() time.Time
}

// NewMirror creates a Mirror writing to the named database.
func NewMirror(driver neo4j.DriverWithContext, database string, logger *zap.Logger) *Mirror {
	return &Mirror{
		driver:   driver,
		database: database,
		logger:   logger.Named("graphsync"),
		now:      time.Now,
	}
}

func (m *Mirror) Name() string { return "neo4j_mirror" }

// EnsureSchema creates the uniqueness constraints the MERGE statements rely on.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	for _, cypher := range schemaStatements {
		res, err := session.Run(ctx, cypher, nil)
		if err != nil {
			return fmt.Errorf("failed to apply neo4j schema: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("failed to apply neo4j schema: %w", err)
		}
	}
	return nil
}

// ProposalDecided mirrors an approval. Rejections do not touch the graph.
func (m *Mirror) ProposalDecided(ctx context.Context, event *models.ReviewEvent) error {
	stmts := statements(event.Result, m.now())
	if len(stmts) == 0 {
		return nil
	}
	if err := m.write(ctx, stmts); err != nil {
		return err
	}
	m.logger.Debug("Mirrored approval",
		zap.String("proposal_id", event.Proposal.ID.String()),
		zap.String("target_kind", string(event.Result.Decision.TargetKind)),
		zap.String("action", string(event.Result.Decision.Action)),
		zap.Int("statements", len(stmts)))
	return nil
}

// Rebuild clears the mirror and loads the given projection into it.
func (m *Mirror) Rebuild(ctx context.Context, projection *models.GraphProjection) error {
	stmts := append([]statement{{cypher: `MATCH (n) WHERE n:OntologyClass OR n:Entity OR n:Observation OR n:Document DETACH DELETE n`}},
		projectionStatements(projection, m.now())...)
	if err := m.write(ctx, stmts); err != nil {
		return err
	}
	m.logger.Info("Rebuilt neo4j mirror",
		zap.Int("nodes", len(projection.Nodes)),
		zap.Int("edges", len(projection.Edges)))
	return nil
}

func (m *Mirror) write(ctx context.Context, stmts []statement) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			res, err := tx.Run(ctx, s.cypher, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to write neo4j mirror: %w", err)
	}
	return nil
}

func (m *Mirror) session(ctx context.Context) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.database,
	})
}

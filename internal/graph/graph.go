// Package graph mirrors notes and their connections into Neo4j so the note
// graph can be explored with Cypher. The SQLite store stays authoritative;
// the mirror is written after each successful store change.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/notegraph/internal/models"
)

// Mirror receives note graph changes.
type Mirror interface {
	UpsertNote(ctx context.Context, n models.Note) error
	DeleteNote(ctx context.Context, noteID int64) error
	UpsertConnection(ctx context.Context, c models.Connection) error
	DeleteConnection(ctx context.Context, connectionID int64) error
	Close(ctx context.Context) error
}

// Noop is the mirror used when no graph database is configured.
type Noop struct{}

func (Noop) UpsertNote(context.Context, models.Note) error             { return nil }
func (Noop) DeleteNote(context.Context, int64) error                   { return nil }
func (Noop) UpsertConnection(context.Context, models.Connection) error { return nil }
func (Noop) DeleteConnection(context.Context, int64) error             { return nil }
func (Noop) Close(context.Context) error                               { return nil }

// Config locates the Neo4j server. An empty URI disables the mirror.
type Config struct {
	URI      string
	User     string
	Password string
}

// Neo4j is a Mirror backed by a Neo4j driver.
type Neo4j struct {
	driver neo4j.DriverWithContext
}

// Open connects to Neo4j and verifies connectivity. With an empty URI it
// returns Noop.
func Open(ctx context.Context, c Config) (Mirror, error) {
	if c.URI == "" {
		return Noop{}, nil
	}
	driver, err := neo4j.NewDriverWithContext(c.URI, neo4j.BasicAuth(c.User, c.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: connect: %w", err)
	}
	return NewNeo4j(driver), nil
}

// NewNeo4j wraps an existing driver.
func NewNeo4j(driver neo4j.DriverWithContext) *Neo4j {
	return &Neo4j{driver: driver}
}

func (g *Neo4j) write(ctx context.Context, query string, params map[string]any) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx) //nolint:errcheck

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// UpsertNote creates or refreshes the note node and its tag edges.
func (g *Neo4j) UpsertNote(ctx context.Context, n models.Note) error {
	query := `
		MERGE (n:Note {id: $id})
		SET n.user_id = $user_id,
		    n.title = $title,
		    n.category = $category,
		    n.importance = $importance,
		    n.updated_at = datetime($updated_at)
		WITH n
		OPTIONAL MATCH (n)-[r:HAS_TAG]->(:Tag)
		DELETE r
		WITH DISTINCT n
		FOREACH (tag IN $tags |
			MERGE (t:Tag {user_id: $user_id, name: tag})
			MERGE (n)-[:HAS_TAG]->(t)
		)
	`
	tags := []string(n.Tags)
	if tags == nil {
		tags = []string{}
	}
	err := g.write(ctx, query, map[string]any{
		"id":         n.ID,
		"user_id":    n.UserID,
		"title":      n.Title,
		"category":   n.Category,
		"importance": n.Importance,
		"updated_at": n.UpdatedAt.UTC().Format(time.RFC3339),
		"tags":       tags,
	})
	if err != nil {
		return fmt.Errorf("graph: upsert note %d: %w", n.ID, err)
	}
	return nil
}

// DeleteNote removes the note node with all of its relationships.
func (g *Neo4j) DeleteNote(ctx context.Context, noteID int64) error {
	if err := g.write(ctx, `MATCH (n:Note {id: $id}) DETACH DELETE n`, map[string]any{"id": noteID}); err != nil {
		return fmt.Errorf("graph: delete note %d: %w", noteID, err)
	}
	return nil
}

// UpsertConnection creates the edge between two mirrored notes. The relation
// label is stored as a property because Cypher cannot parameterize types.
func (g *Neo4j) UpsertConnection(ctx context.Context, c models.Connection) error {
	query := `
		MATCH (s:Note {id: $source_id})
		MATCH (t:Note {id: $target_id})
		MERGE (s)-[r:CONNECTED {id: $id}]->(t)
		SET r.relation = $relation,
		    r.created_at = datetime($created_at)
	`
	err := g.write(ctx, query, map[string]any{
		"id":         c.ID,
		"source_id":  c.SourceID,
		"target_id":  c.TargetID,
		"relation":   c.Relation,
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("graph: upsert connection %d: %w", c.ID, err)
	}
	return nil
}

// DeleteConnection removes the mirrored edge.
func (g *Neo4j) DeleteConnection(ctx context.Context, connectionID int64) error {
	if err := g.write(ctx, `MATCH ()-[r:CONNECTED {id: $id}]->() DELETE r`, map[string]any{"id": connectionID}); err != nil {
		return fmt.Errorf("graph: delete connection %d: %w", connectionID, err)
	}
	return nil
}

// Neighbors returns the ids of notes reachable from noteID within depth hops,
// ignoring edge direction.
func (g *Neo4j) Neighbors(ctx context.Context, noteID int64, depth int) ([]int64, error) {
	if depth < 1 {
		depth = 1
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx) //nolint:errcheck

	query := fmt.Sprintf(`
		MATCH (n:Note {id: $id})-[:CONNECTED*1..%d]-(m:Note)
		WHERE m.id <> $id
		RETURN DISTINCT m.id AS id
		ORDER BY id
	`, depth)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": noteID})
		if err != nil {
			return nil, err
		}
		ids := []int64{}
		for res.Next(ctx) {
			v, _ := res.Record().Get("id")
			if id, ok := v.(int64); ok {
				ids = append(ids, id)
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: neighbors of %d: %w", noteID, err)
	}
	return out.([]int64), nil
}

// Close releases the driver.
func (g *Neo4j) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

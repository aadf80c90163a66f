// Package graph records memory lineage in Neo4j: one node per memory and a
// SUPERSEDED_BY edge per replacement, so "what did this user believe before"
// stays answerable after the cortex has moved on.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/cortex"
)

// Store handles Neo4j operations for memory associations.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a new Neo4j association store.
func NewStore(uri, user, password string, logger *zap.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// RecordMemory upserts a Memory node for the record.
func (s *Store) RecordMemory(ctx context.Context, rec *cortex.MemoryRecord) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (m:Memory {id: $id})
		 SET m.user_id = $userId, m.agent_id = $agentId,
		     m.content = $content, m.category = $category,
		     m.importance = $importance, m.status = $status,
		     m.created_at = datetime($createdAt)`,
		map[string]interface{}{
			"id":         rec.ID,
			"userId":     rec.UserID,
			"agentId":    rec.AgentID,
			"content":    rec.Content,
			"category":   rec.Category,
			"importance": rec.Importance,
			"status":     string(rec.Status),
			"createdAt":  rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	if err != nil {
		return fmt.Errorf("record memory node %s: %w", rec.ID, err)
	}
	return nil
}

// RecordSupersession links the old memory to its replacement.
func (s *Store) RecordSupersession(ctx context.Context, sup *cortex.Supersession) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (old:Memory {id: $oldId})
		 MERGE (new:Memory {id: $newId})
		 MERGE (old)-[r:SUPERSEDED_BY]->(new)
		 SET old.status = 'superseded',
		     r.reason = $reason, r.confidence = $confidence,
		     r.created_at = datetime($createdAt)`,
		map[string]interface{}{
			"oldId":      sup.OldMemoryID,
			"newId":      sup.NewMemoryID,
			"reason":     string(sup.Reason),
			"confidence": sup.Confidence,
			"createdAt":  sup.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	if err != nil {
		return fmt.Errorf("record supersession edge: %w", err)
	}
	s.logger.Debug("supersession edge recorded",
		zap.String("old", sup.OldMemoryID),
		zap.String("new", sup.NewMemoryID))
	return nil
}

// Lineage walks the replacement chain forward from a memory id and returns
// the ids in order, oldest first, starting with the given id.
func (s *Store) Lineage(ctx context.Context, memoryID string) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH path = (m:Memory {id: $id})-[:SUPERSEDED_BY*0..]->(end)
		 WHERE NOT (end)-[:SUPERSEDED_BY]->()
		 RETURN [n IN nodes(path) | n.id] AS ids`,
		map[string]interface{}{"id": memoryID})
	if err != nil {
		return nil, fmt.Errorf("lineage query: %w", err)
	}

	if result.Next(ctx) {
		raw, _ := result.Record().Get("ids")
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("lineage query: unexpected result shape")
		}
		ids := make([]string, 0, len(list))
		for _, v := range list {
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}
	return nil, result.Err()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BangRocket/mypalclara/internal/cortex"
	"github.com/BangRocket/mypalclara/internal/dynamics"
)

// SaveRecord upserts a memory record.
func (s *Store) SaveRecord(ctx context.Context, rec *cortex.MemoryRecord) error {
	var metaJSON []byte
	if len(rec.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	var expires *time.Time
	if !rec.ExpiresAt.IsZero() {
		expires = &rec.ExpiresAt
	}
	var superseded *string
	if rec.SupersededBy != "" {
		superseded = &rec.SupersededBy
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_records (id, user_id, agent_id, content, category, importance, metadata, status, superseded_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			importance = EXCLUDED.importance,
			metadata = EXCLUDED.metadata,
			status = EXCLUDED.status,
			superseded_by = EXCLUDED.superseded_by,
			expires_at = EXCLUDED.expires_at`,
		rec.ID, rec.UserID, rec.AgentID, rec.Content, rec.Category,
		rec.Importance, metaJSON, string(rec.Status), superseded,
		rec.CreatedAt, expires,
	)
	if err != nil {
		return fmt.Errorf("save memory record %s: %w", rec.ID, err)
	}
	return nil
}

// GetRecord retrieves a single memory record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (*cortex.MemoryRecord, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, agent_id, content, category, importance, metadata, status, superseded_by, created_at, expires_at
		FROM memory_records
		WHERE id = $1`, id)

	var rec cortex.MemoryRecord
	var category, superseded *string
	var metaJSON []byte
	var expires *time.Time
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.AgentID, &rec.Content,
		&category, &rec.Importance, &metaJSON, &rec.Status, &superseded,
		&rec.CreatedAt, &expires); err != nil {
		return nil, fmt.Errorf("get memory record %s: %w", id, err)
	}
	if category != nil {
		rec.Category = *category
	}
	if superseded != nil {
		rec.SupersededBy = *superseded
	}
	if expires != nil {
		rec.ExpiresAt = *expires
	}
	if len(metaJSON) > 0 {
		json.Unmarshal(metaJSON, &rec.Metadata)
	}
	return &rec, nil
}

// ListRecords retrieves a user's memory records, newest first.
func (s *Store) ListRecords(ctx context.Context, userID string, activeOnly bool, limit int) ([]cortex.MemoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	q := `
		SELECT id, user_id, agent_id, content, category, importance, status, created_at
		FROM memory_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if activeOnly {
		q = `
		SELECT id, user_id, agent_id, content, category, importance, status, created_at
		FROM memory_records
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT $2`
	}

	rows, err := s.db.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memory records: %w", err)
	}
	defer rows.Close()

	var out []cortex.MemoryRecord
	for rows.Next() {
		var rec cortex.MemoryRecord
		var category *string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.AgentID, &rec.Content,
			&category, &rec.Importance, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		if category != nil {
			rec.Category = *category
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveDynamics upserts the scheduling state for a memory.
func (s *Store) SaveDynamics(ctx context.Context, d *dynamics.Dynamics) error {
	var lastAccessed *time.Time
	if !d.LastAccessedAt.IsZero() {
		lastAccessed = &d.LastAccessedAt
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_dynamics (memory_id, user_id, stability, difficulty, retrieval_strength, storage_strength, is_key, importance_weight, category, last_accessed_at, access_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (memory_id) DO UPDATE SET
			stability = EXCLUDED.stability,
			difficulty = EXCLUDED.difficulty,
			retrieval_strength = EXCLUDED.retrieval_strength,
			storage_strength = EXCLUDED.storage_strength,
			is_key = EXCLUDED.is_key,
			importance_weight = EXCLUDED.importance_weight,
			category = EXCLUDED.category,
			last_accessed_at = EXCLUDED.last_accessed_at,
			access_count = EXCLUDED.access_count,
			updated_at = EXCLUDED.updated_at`,
		d.MemoryID, d.UserID, d.Stability, d.Difficulty,
		d.RetrievalStrength, d.StorageStrength, d.IsKey, d.ImportanceWeight,
		d.Category, lastAccessed, d.AccessCount, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save dynamics %s: %w", d.MemoryID, err)
	}
	return nil
}

// SaveAccessLog appends one access history entry.
func (s *Store) SaveAccessLog(ctx context.Context, entry dynamics.AccessLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_access_log (id, memory_id, user_id, grade, signal_type, retrievability_at_access, context, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.MemoryID, entry.UserID, entry.Grade,
		string(entry.Signal), entry.RetrievabilityAtAccess, entry.Context,
		entry.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("save access log: %w", err)
	}
	return nil
}

// SaveSupersession records that one memory replaced another.
func (s *Store) SaveSupersession(ctx context.Context, sup *cortex.Supersession) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_supersessions (id, old_memory_id, new_memory_id, user_id, reason, confidence, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		sup.ID, sup.OldMemoryID, sup.NewMemoryID, sup.UserID,
		string(sup.Reason), sup.Confidence, sup.Details, sup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save supersession: %w", err)
	}
	return nil
}

// SupersessionChain walks the replacement lineage starting from a memory id,
// oldest link first.
func (s *Store) SupersessionChain(ctx context.Context, memoryID string) ([]cortex.Supersession, error) {
	rows, err := s.db.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT id, old_memory_id, new_memory_id, user_id, reason, confidence, details, created_at
			FROM memory_supersessions
			WHERE old_memory_id = $1
			UNION ALL
			SELECT ms.id, ms.old_memory_id, ms.new_memory_id, ms.user_id, ms.reason, ms.confidence, ms.details, ms.created_at
			FROM memory_supersessions ms
			JOIN chain c ON ms.old_memory_id = c.new_memory_id
		)
		SELECT id, old_memory_id, new_memory_id, user_id, reason, confidence, details, created_at
		FROM chain
		ORDER BY created_at ASC`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("supersession chain: %w", err)
	}
	defer rows.Close()

	var out []cortex.Supersession
	for rows.Next() {
		var sup cortex.Supersession
		var details *string
		if err := rows.Scan(&sup.ID, &sup.OldMemoryID, &sup.NewMemoryID,
			&sup.UserID, &sup.Reason, &sup.Confidence, &details, &sup.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supersession: %w", err)
		}
		if details != nil {
			sup.Details = *details
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

// PruneAccessLogs deletes access entries older than the cutoff and returns
// the number removed.
func (s *Store) PruneAccessLogs(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM memory_access_log
		WHERE accessed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune access logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

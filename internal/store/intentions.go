package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BangRocket/mypalclara/internal/intention"
)

// SaveIntention upserts an intention, serializing its trigger to JSON.
func (s *Store) SaveIntention(ctx context.Context, in *intention.Intention) error {
	trigJSON, err := json.Marshal(in.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}

	var source *string
	if in.SourceMemoryID != "" {
		source = &in.SourceMemoryID
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO intentions (id, user_id, agent_id, content, source_memory_id, trigger_conditions, priority, fired, fire_once, created_at, expires_at, fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			fired = EXCLUDED.fired,
			fired_at = EXCLUDED.fired_at,
			expires_at = EXCLUDED.expires_at,
			priority = EXCLUDED.priority`,
		in.ID, in.UserID, in.AgentID, in.Content, source, string(trigJSON),
		in.Priority, in.Fired, in.FireOnce, in.CreatedAt, in.ExpiresAt, in.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("save intention %s: %w", in.ID, err)
	}
	return nil
}

// ListIntentions loads a user's intentions, highest priority first.
func (s *Store) ListIntentions(ctx context.Context, userID string, includeFired bool) ([]intention.Intention, error) {
	q := `
		SELECT id, user_id, agent_id, content, source_memory_id, trigger_conditions, priority, fired, fire_once, created_at, expires_at, fired_at
		FROM intentions
		WHERE user_id = $1
		ORDER BY priority DESC`
	if !includeFired {
		q = `
		SELECT id, user_id, agent_id, content, source_memory_id, trigger_conditions, priority, fired, fire_once, created_at, expires_at, fired_at
		FROM intentions
		WHERE user_id = $1 AND fired = FALSE
		ORDER BY priority DESC`
	}

	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list intentions: %w", err)
	}
	defer rows.Close()

	var out []intention.Intention
	for rows.Next() {
		var in intention.Intention
		var source *string
		var trigJSON string
		if err := rows.Scan(&in.ID, &in.UserID, &in.AgentID, &in.Content,
			&source, &trigJSON, &in.Priority, &in.Fired, &in.FireOnce,
			&in.CreatedAt, &in.ExpiresAt, &in.FiredAt); err != nil {
			return nil, fmt.Errorf("scan intention: %w", err)
		}
		if source != nil {
			in.SourceMemoryID = *source
		}
		if err := json.Unmarshal([]byte(trigJSON), &in.Trigger); err != nil {
			s.logger.Warn("skipping intention with bad trigger JSON")
			continue
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// DeleteIntention removes an intention by id.
func (s *Store) DeleteIntention(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM intentions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete intention %s: %w", id, err)
	}
	return nil
}

// DeleteExpiredIntentions removes every intention past its expiry.
func (s *Store) DeleteExpiredIntentions(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM intentions
		WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired intentions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

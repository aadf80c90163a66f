// Package cortex is the memory store coordinator: it routes new observations
// into the working or identity tier, reconciles contradictions against
// existing memories, and composes retrieval context from all tiers.
package cortex

import (
	"context"
	"errors"
	"time"

	"github.com/BangRocket/mypalclara/internal/dynamics"
)

var (
	// ErrInvalidInput marks malformed caller input (empty user id,
	// non-numeric importance). Rejected at the boundary, never coerced.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a reference to a memory id that does not exist.
	ErrNotFound = errors.New("memory not found")
)

// RecordStatus is the lifecycle state of a memory record. ACTIVE is the only
// non-terminal state; transitions are one-way.
type RecordStatus string

const (
	StatusActive     RecordStatus = "active"
	StatusSuperseded RecordStatus = "superseded"
	StatusEvicted    RecordStatus = "evicted" // working tier only
)

// MemoryRecord is one remembered fact. Owned exclusively by the Manager;
// the dynamics sub-record is mutated only through the scheduler.
type MemoryRecord struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	AgentID      string            `json:"agent_id"`
	Content      string            `json:"content"`
	Category     string            `json:"category,omitempty"`
	Importance   float64           `json:"importance"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Status       RecordStatus      `json:"status"`
	SupersededBy string            `json:"superseded_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at,omitempty"` // zero means permanent

	Dynamics *dynamics.Dynamics `json:"-"`
}

// SupersessionReason explains why one memory replaced another.
type SupersessionReason string

const (
	ReasonContradiction SupersessionReason = "contradiction"
	ReasonUpdate        SupersessionReason = "update"
	ReasonMerge         SupersessionReason = "merge"
)

// Supersession records that OldMemoryID was replaced by NewMemoryID.
// Immutable once created.
type Supersession struct {
	ID          string             `json:"id"`
	OldMemoryID string             `json:"old_memory_id"`
	NewMemoryID string             `json:"new_memory_id"`
	UserID      string             `json:"user_id"`
	Reason      SupersessionReason `json:"reason"`
	Confidence  float64            `json:"confidence"`
	Details     string             `json:"details,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Action is the write decision made by Remember.
type Action string

const (
	ActionCreate    Action = "create"
	ActionSkip      Action = "skip"
	ActionUpdate    Action = "update"
	ActionSupersede Action = "supersede"
)

// RememberResult is the outcome of one Remember call. Record is nil only for
// ActionSkip, where Existing points at the near-duplicate that was kept.
type RememberResult struct {
	Action       Action        `json:"action"`
	Record       *MemoryRecord `json:"record,omitempty"`
	Existing     *MemoryRecord `json:"existing,omitempty"`
	Supersession *Supersession `json:"supersession,omitempty"`
}

// QuickContext is the cheap fast-path bundle: identity facts and session
// state only, no semantic search.
type QuickContext struct {
	UserID          string            `json:"user_id"`
	UserName        string            `json:"user_name"`
	IdentityFacts   []string          `json:"identity_facts"`
	Session         map[string]string `json:"session"`
	LastInteraction string            `json:"last_interaction,omitempty"`
}

// WorkingMemory is one working-tier entry in a composed context, with decay
// recomputed at read time.
type WorkingMemory struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Category       string    `json:"category,omitempty"`
	Importance     float64   `json:"importance"`
	Retrievability float64   `json:"retrievability"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// RetrievedMemory is one long-term hit, ranked by the composite of semantic
// similarity and dynamics score.
type RetrievedMemory struct {
	ID             string  `json:"id,omitempty"`
	Content        string  `json:"content"`
	Category       string  `json:"category,omitempty"`
	Importance     float64 `json:"importance"`
	Similarity     float64 `json:"similarity"`
	Retrievability float64 `json:"retrievability"`
	Score          float64 `json:"score"`
}

// MemoryContext is the full composed retrieval bundle. Degraded is set when
// the long-term lookup failed or timed out and the bundle holds only the
// identity, session and working tiers.
type MemoryContext struct {
	UserID            string            `json:"user_id"`
	UserName          string            `json:"user_name"`
	IdentityFacts     []string          `json:"identity_facts"`
	Session           map[string]string `json:"session"`
	WorkingMemories   []WorkingMemory   `json:"working_memories"`
	RetrievedMemories []RetrievedMemory `json:"retrieved_memories"`
	ProjectContext    map[string]string `json:"project_context,omitempty"`
	Degraded          bool              `json:"degraded,omitempty"`
}

// SemanticHit is one result from the long-term semantic store.
type SemanticHit struct {
	ID         string
	Content    string
	Category   string
	Importance float64
	Similarity float64
}

// SemanticStore is the long-term vector-backed collaborator. Failures and
// timeouts are treated as "no results", never as fatal.
type SemanticStore interface {
	Store(ctx context.Context, rec *MemoryRecord) error
	Search(ctx context.Context, userID, query string, limit int, projectID string) ([]SemanticHit, error)
}

// Archive is the relational persistence collaborator for the durable
// representation of records, dynamics, access logs and supersessions.
type Archive interface {
	SaveRecord(ctx context.Context, rec *MemoryRecord) error
	SaveDynamics(ctx context.Context, d *dynamics.Dynamics) error
	SaveAccessLog(ctx context.Context, entry dynamics.AccessLog) error
	SaveSupersession(ctx context.Context, s *Supersession) error
	PruneAccessLogs(ctx context.Context, before time.Time) (int, error)
}

// Mirror is a write-through fast tier (Redis) kept in sync so other
// processes can read identity, session and working state cheaply.
type Mirror interface {
	SetIdentityFact(ctx context.Context, userID, field, content string) error
	AddWorking(ctx context.Context, userID, content string, importance float64, ttl time.Duration) error
	TrimWorking(ctx context.Context, userID string, keep int64) error
	SetSession(ctx context.Context, userID string, fields map[string]string, ttl time.Duration) error
}

// Associations is the graph collaborator recording memory nodes and
// supersession edges for lineage queries.
type Associations interface {
	RecordMemory(ctx context.Context, rec *MemoryRecord) error
	RecordSupersession(ctx context.Context, s *Supersession) error
}

// SupersessionHook is called after a supersession is committed, outside any
// storage transaction. Used by the intention registry to cascade.
type SupersessionHook func(ctx context.Context, s *Supersession)

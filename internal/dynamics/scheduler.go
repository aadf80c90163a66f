package dynamics

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignalType describes how a review grade was derived. There is no explicit
// review UI; grades are inferred from how the memory was used.
type SignalType string

const (
	SignalUsedInResponse        SignalType = "used_in_response"
	SignalMentionedByUser       SignalType = "mentioned_by_user"
	SignalUserCorrection        SignalType = "user_correction"
	SignalTaskCompleted         SignalType = "task_completed"
	SignalExplicitRecall        SignalType = "explicit_recall"
	SignalContradictionDetected SignalType = "contradiction_detected"
	SignalImplicitReference     SignalType = "implicit_reference"
	SignalPartialRecall         SignalType = "partial_recall"
	SignalSuperseded            SignalType = "superseded"
)

// InferGrade maps a usage signal to a review grade. Unknown signals default
// to Good.
func InferGrade(signal SignalType) Grade {
	switch signal {
	case SignalMentionedByUser, SignalTaskCompleted:
		return GradeEasy
	case SignalUserCorrection, SignalContradictionDetected, SignalSuperseded:
		return GradeAgain
	case SignalPartialRecall:
		return GradeHard
	default:
		return GradeGood
	}
}

// Dynamics is the durable dynamics sub-record, 1:1 with a memory record.
// The scheduler is the only writer; invariants (stability > 0, difficulty in
// [1,10], strengths in [0,1]) hold after every update.
type Dynamics struct {
	MemoryID          string
	UserID            string
	Stability         float64
	Difficulty        float64
	RetrievalStrength float64
	StorageStrength   float64
	IsKey             bool
	ImportanceWeight  float64
	Category          string
	LastAccessedAt    time.Time // zero value means never accessed
	AccessCount       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDynamics returns a dynamics record with model defaults.
func NewDynamics(memoryID, userID string, now time.Time) *Dynamics {
	return &Dynamics{
		MemoryID:          memoryID,
		UserID:            userID,
		Stability:         1.0,
		Difficulty:        5.0,
		RetrievalStrength: 1.0,
		StorageStrength:   0.5,
		ImportanceWeight:  1.0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (d *Dynamics) state() State {
	return State{
		Stability:         d.Stability,
		Difficulty:        d.Difficulty,
		RetrievalStrength: d.RetrievalStrength,
		StorageStrength:   d.StorageStrength,
		LastReview:        d.LastAccessedAt,
		ReviewCount:       d.AccessCount,
	}
}

// AccessLog is one append-only retrieval/grading event. Never mutated.
type AccessLog struct {
	ID                     string
	MemoryID               string
	UserID                 string
	Grade                  int
	Signal                 SignalType
	RetrievabilityAtAccess float64
	Context                string
	AccessedAt             time.Time
}

// Identity-critical memories never decay below this retrievability, so they
// always clear any sane eviction threshold.
const keyRetrievabilityFloor = 0.5

// Scheduler applies the dynamics model to memory records.
type Scheduler struct {
	params Params
	logger *zap.Logger
}

// NewScheduler creates a Scheduler with the given parameter set.
func NewScheduler(params Params, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{params: params, logger: logger}
}

// RecordAccess applies one graded access to the dynamics record in place and
// returns the append-only log entry. The logged retrievability is the value
// before the update was applied.
func (s *Scheduler) RecordAccess(d *Dynamics, grade Grade, signal SignalType, note string, now time.Time) AccessLog {
	result := Review(d.state(), grade, now, s.params)

	d.Stability = result.State.Stability
	d.Difficulty = result.State.Difficulty
	d.RetrievalStrength = result.State.RetrievalStrength
	d.StorageStrength = result.State.StorageStrength
	d.LastAccessedAt = now
	d.AccessCount++
	d.UpdatedAt = now

	s.logger.Debug("recorded memory access",
		zap.String("memory", d.MemoryID),
		zap.Int("grade", int(grade)),
		zap.String("signal", string(signal)),
		zap.Float64("stability", d.Stability),
		zap.Float64("difficulty", d.Difficulty),
		zap.Float64("retrievability_before", result.RetrievabilityBefore))

	return AccessLog{
		ID:                     uuid.New().String(),
		MemoryID:               d.MemoryID,
		UserID:                 d.UserID,
		Grade:                  int(grade),
		Signal:                 signal,
		RetrievabilityAtAccess: result.RetrievabilityBefore,
		Context:                note,
		AccessedAt:             now,
	}
}

// Retrievability computes the on-demand decay value for a record. Key
// memories are floored so they cannot be evicted by decay.
func (s *Scheduler) Retrievability(d *Dynamics, now time.Time) float64 {
	var elapsedDays float64
	if !d.LastAccessedAt.IsZero() {
		elapsedDays = now.Sub(d.LastAccessedAt).Seconds() / 86400.0
	} else if !d.CreatedAt.IsZero() {
		elapsedDays = now.Sub(d.CreatedAt).Seconds() / 86400.0
	}

	r := Retrievability(elapsedDays, d.Stability, s.params)
	if d.IsKey && r < keyRetrievabilityFloor {
		return keyRetrievabilityFloor
	}
	return r
}

// ShouldEvict reports whether the record has decayed below threshold. Key
// memories are never evicted.
func (s *Scheduler) ShouldEvict(d *Dynamics, now time.Time, threshold float64) bool {
	if d.IsKey {
		return false
	}
	return s.Retrievability(d, now) < threshold
}

// Score returns the importance-weighted composite ranking score.
func (s *Scheduler) Score(d *Dynamics, now time.Time) float64 {
	importance := d.ImportanceWeight
	if importance == 0 {
		importance = 1.0
	}
	return CompositeScore(s.Retrievability(d, now), d.StorageStrength, importance)
}

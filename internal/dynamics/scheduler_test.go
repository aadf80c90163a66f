package dynamics

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func testScheduler() *Scheduler {
	return NewScheduler(DefaultParams(), zap.NewNop())
}

func TestRecordAccessUpdatesDynamics(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := NewDynamics("mem-1", "user-1", now)
	entry := s.RecordAccess(d, GradeGood, SignalUsedInResponse, "retrieved for reply", now)

	if d.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", d.AccessCount)
	}
	if !d.LastAccessedAt.Equal(now) {
		t.Errorf("last accessed = %v, want %v", d.LastAccessedAt, now)
	}
	if entry.MemoryID != "mem-1" || entry.UserID != "user-1" {
		t.Errorf("log entry ids wrong: %+v", entry)
	}
	if entry.ID == "" {
		t.Error("log entry missing id")
	}
	if entry.Grade != int(GradeGood) || entry.Signal != SignalUsedInResponse {
		t.Errorf("log entry grade/signal wrong: %+v", entry)
	}
	if entry.Context != "retrieved for reply" {
		t.Errorf("log entry context = %q", entry.Context)
	}
}

func TestRecordAccessLogsPreUpdateRetrievability(t *testing.T) {
	s := testScheduler()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := NewDynamics("mem-1", "user-1", created)
	s.RecordAccess(d, GradeGood, SignalUsedInResponse, "", created)

	// Second access ten days later: the log must snapshot R computed from
	// the state before the reinforcement was applied.
	later := created.Add(10 * 24 * time.Hour)
	want := Retrievability(10, d.Stability, DefaultParams())
	entry := s.RecordAccess(d, GradeGood, SignalUsedInResponse, "", later)
	if entry.RetrievabilityAtAccess != want {
		t.Errorf("logged retrievability %v, want pre-update value %v",
			entry.RetrievabilityAtAccess, want)
	}
}

func TestRepeatedHighGradeAccessGrowsStability(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := NewDynamics("mem-1", "user-1", now)
	s.RecordAccess(d, GradeEasy, SignalTaskCompleted, "", now)

	prev := d.Stability
	for i := 0; i < 4; i++ {
		now = now.Add(3 * 24 * time.Hour)
		s.RecordAccess(d, GradeEasy, SignalTaskCompleted, "", now)
		if d.Stability <= prev {
			t.Fatalf("access %d: stability %v did not grow past %v", i, d.Stability, prev)
		}
		prev = d.Stability
	}
}

func TestLowGradeAccessAfterGapShrinksStability(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := NewDynamics("mem-1", "user-1", now)
	s.RecordAccess(d, GradeEasy, SignalTaskCompleted, "", now)
	s.RecordAccess(d, GradeGood, SignalUsedInResponse, "", now.Add(2*24*time.Hour))

	before := d.Stability
	s.RecordAccess(d, GradeAgain, SignalUserCorrection, "", now.Add(60*24*time.Hour))
	if d.Stability >= before {
		t.Errorf("stability %v did not shrink from %v", d.Stability, before)
	}
	if d.Stability <= 0 {
		t.Errorf("stability %v must remain strictly positive", d.Stability)
	}
}

func TestSchedulerRetrievabilityDecays(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := NewDynamics("mem-1", "user-1", now)
	s.RecordAccess(d, GradeGood, SignalUsedInResponse, "", now)

	fresh := s.Retrievability(d, now.Add(time.Hour))
	stale := s.Retrievability(d, now.Add(30*24*time.Hour))
	if stale >= fresh {
		t.Errorf("retrievability did not decay: %v >= %v", stale, fresh)
	}
}

func TestKeyMemoryFloorAndEviction(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := NewDynamics("mem-1", "user-1", now)
	d.IsKey = true
	d.Stability = 0.2

	far := now.Add(365 * 24 * time.Hour)
	if r := s.Retrievability(d, far); r < keyRetrievabilityFloor {
		t.Errorf("key memory retrievability %v below floor %v", r, keyRetrievabilityFloor)
	}
	if s.ShouldEvict(d, far, 0.4) {
		t.Error("key memory must never be evicted")
	}

	d.IsKey = false
	if !s.ShouldEvict(d, far, 0.4) {
		t.Error("decayed non-key memory should be evicted")
	}
	if s.ShouldEvict(d, now, 0.4) {
		t.Error("fresh memory should not be evicted")
	}
}

func TestScoreWeightsImportance(t *testing.T) {
	s := testScheduler()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	plain := NewDynamics("mem-1", "user-1", now)
	weighty := NewDynamics("mem-2", "user-1", now)
	weighty.ImportanceWeight = 2.0

	at := now.Add(24 * time.Hour)
	if s.Score(weighty, at) <= s.Score(plain, at) {
		t.Error("higher importance weight must raise the composite score")
	}
}

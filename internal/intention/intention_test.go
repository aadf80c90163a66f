package intention

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BangRocket/mypalclara/internal/cortex"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(clock *fixedClock) *Registry {
	return NewRegistry(RegistryOptions{Now: clock.Now})
}

func TestCreateRejectsEmptyFields(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	if _, err := r.Create(context.Background(), CreateRequest{UserID: "", Content: "x"}); err != ErrInvalidIntention {
		t.Errorf("empty user: err = %v, want ErrInvalidIntention", err)
	}
	if _, err := r.Create(context.Background(), CreateRequest{UserID: "u1", Content: "  "}); err != ErrInvalidIntention {
		t.Errorf("blank content: err = %v, want ErrInvalidIntention", err)
	}
}

func TestKeywordTriggerFires(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	in, err := r.Create(context.Background(), CreateRequest{
		UserID:   "u1",
		Content:  "remind josh about the dentist",
		Trigger:  Trigger{Type: TriggerKeyword, Keywords: []string{"dentist", "appointment"}},
		FireOnce: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	fired := r.Check(context.Background(), "u1", "I think my DENTIST called earlier", nil, StrategyTiered)
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}
	if fired[0].ID != in.ID || fired[0].TriggerType != TriggerKeyword {
		t.Errorf("fired = %+v", fired[0])
	}

	// fire_once removes it entirely
	if again := r.Check(context.Background(), "u1", "dentist again", nil, StrategyTiered); len(again) != 0 {
		t.Errorf("second check fired %d, want 0", len(again))
	}
	if got := r.List("u1", true); len(got) != 0 {
		t.Errorf("list after fire_once = %d entries, want 0", len(got))
	}
}

func TestKeywordCaseSensitive(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "project codename reminder",
		Trigger: Trigger{Type: TriggerKeyword, Keywords: []string{"Atlas"}, CaseSensitive: true},
	}); err != nil {
		t.Fatal(err)
	}

	if fired := r.Check(context.Background(), "u1", "the atlas mountains", nil, StrategyTiered); len(fired) != 0 {
		t.Error("lowercase mention should not fire a case sensitive trigger")
	}
	if fired := r.Check(context.Background(), "u1", "status of Atlas", nil, StrategyTiered); len(fired) != 1 {
		t.Error("exact case mention should fire")
	}
}

func TestRegexTrigger(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "ticket followup",
		Trigger: Trigger{Type: TriggerKeyword, Regex: `TICK-\d+`},
	}); err != nil {
		t.Fatal(err)
	}

	fired := r.Check(context.Background(), "u1", "any news on tick-4821?", nil, StrategyTiered)
	if len(fired) != 1 {
		t.Fatalf("regex trigger fired = %d, want 1", len(fired))
	}
}

func TestTopicTriggerWithQuickKeywordPrefilter(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "mention the conference talk",
		Trigger: Trigger{
			Type:          TriggerTopic,
			Topic:         "conference talk slides",
			Threshold:     0.6,
			QuickKeywords: []string{"conference"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	// Tiered strategy skips the topic check when no quick keyword appears.
	if fired := r.Check(context.Background(), "u1", "working on my talk slides", nil, StrategyTiered); len(fired) != 0 {
		t.Error("tiered check should skip without quick keyword")
	}
	// Every-message strategy evaluates the topic overlap directly.
	if fired := r.Check(context.Background(), "u1", "working on my talk slides", nil, StrategyEveryMessage); len(fired) != 1 {
		t.Error("every_message check should fire on topic overlap")
	}
}

func TestTimeTrigger(t *testing.T) {
	clock := newFixedClock()
	r := newTestRegistry(clock)
	at := clock.Now().Add(time.Hour)
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "standup starts",
		Trigger: Trigger{Type: TriggerTime, At: &at},
	}); err != nil {
		t.Fatal(err)
	}

	if fired := r.Check(context.Background(), "u1", "anything", nil, StrategyTiered); len(fired) != 0 {
		t.Error("time trigger fired early")
	}
	clock.Advance(2 * time.Hour)
	if fired := r.Check(context.Background(), "u1", "anything", nil, StrategyTiered); len(fired) != 1 {
		t.Error("time trigger should fire once the deadline passes")
	}
}

func TestSessionStartStrategyOnlyTimeTriggers(t *testing.T) {
	clock := newFixedClock()
	r := newTestRegistry(clock)
	after := clock.Now().Add(-time.Minute)
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "overdue reminder",
		Trigger: Trigger{Type: TriggerTime, After: &after},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "keyword reminder",
		Trigger: Trigger{Type: TriggerKeyword, Keywords: []string{"anything"}},
	}); err != nil {
		t.Fatal(err)
	}

	fired := r.Check(context.Background(), "u1", "anything", nil, StrategySessionStart)
	if len(fired) != 1 || fired[0].TriggerType != TriggerTime {
		t.Fatalf("session_start fired = %+v, want only the time trigger", fired)
	}
}

func TestContextTrigger(t *testing.T) {
	clock := newFixedClock() // 10:00 UTC, a Sunday
	r := newTestRegistry(clock)
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "morning check-in",
		Trigger: Trigger{Type: TriggerContext, Conditions: map[string]string{
			"time_of_day": "morning",
			"channel":     "general",
		}},
	}); err != nil {
		t.Fatal(err)
	}

	if fired := r.Check(context.Background(), "u1", "hi", map[string]string{"channel": "random"}, StrategyTiered); len(fired) != 0 {
		t.Error("wrong channel should not fire")
	}
	if fired := r.Check(context.Background(), "u1", "hi", map[string]string{"channel": "general"}, StrategyTiered); len(fired) != 1 {
		t.Error("matching context should fire")
	}
}

func TestPriorityOrdering(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	for _, p := range []int{1, 5, 3} {
		if _, err := r.Create(context.Background(), CreateRequest{
			UserID:   "u1",
			Content:  "reminder",
			Priority: p,
			Trigger:  Trigger{Type: TriggerKeyword, Keywords: []string{"go"}},
		}); err != nil {
			t.Fatal(err)
		}
	}

	fired := r.Check(context.Background(), "u1", "go", nil, StrategyTiered)
	if len(fired) != 3 {
		t.Fatalf("fired = %d, want 3", len(fired))
	}
	if fired[0].Priority != 5 || fired[1].Priority != 3 || fired[2].Priority != 1 {
		t.Errorf("priorities = %d,%d,%d, want 5,3,1",
			fired[0].Priority, fired[1].Priority, fired[2].Priority)
	}
}

func TestCleanupExpired(t *testing.T) {
	clock := newFixedClock()
	r := newTestRegistry(clock)
	exp := clock.Now().Add(30 * time.Minute)
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:    "u1",
		Content:   "short lived",
		ExpiresAt: &exp,
		Trigger:   Trigger{Type: TriggerKeyword, Keywords: []string{"x"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "permanent",
		Trigger: Trigger{Type: TriggerKeyword, Keywords: []string{"y"}},
	}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	if got := r.CleanupExpired(context.Background()); got != 1 {
		t.Errorf("cleaned up %d, want 1", got)
	}
	if got := r.List("u1", true); len(got) != 1 || got[0].Content != "permanent" {
		t.Errorf("surviving intentions = %+v", got)
	}
}

func TestExpiredIntentionNeverFires(t *testing.T) {
	clock := newFixedClock()
	r := newTestRegistry(clock)
	exp := clock.Now().Add(10 * time.Minute)
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:    "u1",
		Content:   "stale",
		ExpiresAt: &exp,
		Trigger:   Trigger{Type: TriggerKeyword, Keywords: []string{"stale"}},
	}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	if fired := r.Check(context.Background(), "u1", "stale stale stale", nil, StrategyTiered); len(fired) != 0 {
		t.Error("expired intention fired")
	}
}

func TestCascadeSupersessionDropsSourceIntentions(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:         "u1",
		Content:        "ask about the old job",
		SourceMemoryID: "mem-old",
		Trigger:        Trigger{Type: TriggerKeyword, Keywords: []string{"job"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(context.Background(), CreateRequest{
		UserID:         "u1",
		Content:        "unrelated reminder",
		SourceMemoryID: "mem-other",
		Trigger:        Trigger{Type: TriggerKeyword, Keywords: []string{"job"}},
	}); err != nil {
		t.Fatal(err)
	}

	r.CascadeSupersession(context.Background(), &cortex.Supersession{
		UserID:      "u1",
		OldMemoryID: "mem-old",
		NewMemoryID: "mem-new",
		Reason:      cortex.ReasonContradiction,
	})

	got := r.List("u1", true)
	if len(got) != 1 || got[0].SourceMemoryID != "mem-other" {
		t.Errorf("after cascade = %+v, want only the unrelated intention", got)
	}
}

// recordingStore captures registry writes for durability assertions.
type recordingStore struct {
	mu      sync.Mutex
	saved   []Intention
	deleted []string
}

func (s *recordingStore) SaveIntention(_ context.Context, in *Intention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *in)
	return nil
}

func (s *recordingStore) DeleteIntention(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func TestRegistryMirrorsMutationsToStore(t *testing.T) {
	clock := newFixedClock()
	store := &recordingStore{}
	r := NewRegistry(RegistryOptions{Now: clock.Now, Store: store})
	ctx := context.Background()

	once, err := r.Create(ctx, CreateRequest{
		UserID:   "u1",
		Content:  "single shot",
		FireOnce: true,
		Trigger:  Trigger{Type: TriggerKeyword, Keywords: []string{"ping"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	repeat, err := r.Create(ctx, CreateRequest{
		UserID:  "u1",
		Content: "recurring",
		Trigger: Trigger{Type: TriggerKeyword, Keywords: []string{"ping"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.saved) != 2 {
		t.Fatalf("creates saved = %d, want 2", len(store.saved))
	}

	// Firing persists the marked recurring intention and deletes the
	// fire-once one.
	if fired := r.Check(ctx, "u1", "ping", nil, StrategyTiered); len(fired) != 2 {
		t.Fatalf("fired = %d, want 2", len(fired))
	}
	if len(store.deleted) != 1 || store.deleted[0] != once.ID {
		t.Errorf("deleted = %v, want just %s", store.deleted, once.ID)
	}
	last := store.saved[len(store.saved)-1]
	if last.ID != repeat.ID || !last.Fired {
		t.Errorf("persisted fired state = %+v", last)
	}

	if !r.Delete(ctx, repeat.ID, "u1") {
		t.Fatal("delete failed")
	}
	if store.deleted[len(store.deleted)-1] != repeat.ID {
		t.Errorf("delete not mirrored: %v", store.deleted)
	}
}

func TestCascadeSupersessionMirrorsToStore(t *testing.T) {
	store := &recordingStore{}
	r := NewRegistry(RegistryOptions{Now: newFixedClock().Now, Store: store})
	ctx := context.Background()

	doomed, err := r.Create(ctx, CreateRequest{
		UserID:         "u1",
		Content:        "stale follow-up",
		SourceMemoryID: "mem-old",
		Trigger:        Trigger{Type: TriggerKeyword, Keywords: []string{"job"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r.CascadeSupersession(ctx, &cortex.Supersession{
		UserID:      "u1",
		OldMemoryID: "mem-old",
		NewMemoryID: "mem-new",
		Reason:      cortex.ReasonUpdate,
	})
	if len(store.deleted) != 1 || store.deleted[0] != doomed.ID {
		t.Errorf("cascade deletes = %v, want just %s", store.deleted, doomed.ID)
	}
}

func TestCleanupExpiredMirrorsToStore(t *testing.T) {
	clock := newFixedClock()
	store := &recordingStore{}
	r := NewRegistry(RegistryOptions{Now: clock.Now, Store: store})
	ctx := context.Background()

	exp := clock.Now().Add(10 * time.Minute)
	stale, err := r.Create(ctx, CreateRequest{
		UserID:    "u1",
		Content:   "short lived",
		ExpiresAt: &exp,
		Trigger:   Trigger{Type: TriggerKeyword, Keywords: []string{"x"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	if got := r.CleanupExpired(ctx); got != 1 {
		t.Fatalf("cleaned up %d, want 1", got)
	}
	if len(store.deleted) != 1 || store.deleted[0] != stale.ID {
		t.Errorf("cleanup deletes = %v, want just %s", store.deleted, stale.ID)
	}
}

func TestDelete(t *testing.T) {
	r := newTestRegistry(newFixedClock())
	in, err := r.Create(context.Background(), CreateRequest{
		UserID:  "u1",
		Content: "target",
		Trigger: Trigger{Type: TriggerKeyword, Keywords: []string{"x"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if r.Delete(context.Background(), in.ID, "u2") {
		t.Error("delete with wrong user should fail")
	}
	if !r.Delete(context.Background(), in.ID, "u1") {
		t.Error("delete with owning user should succeed")
	}
	if r.Delete(context.Background(), in.ID, "") {
		t.Error("second delete should report not found")
	}
}

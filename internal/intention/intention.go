// Package intention stores future triggers that surface stored content at
// the right moment: reminders keyed on keywords, topics, clock time, or
// conversational context.
package intention

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/cortex"
)

// TriggerType selects how an intention decides to fire.
type TriggerType string

const (
	TriggerKeyword TriggerType = "keyword"
	TriggerTopic   TriggerType = "topic"
	TriggerTime    TriggerType = "time"
	TriggerContext TriggerType = "context"
)

// Strategy trades thoroughness for speed when scanning intentions.
type Strategy string

const (
	// StrategyEveryMessage runs every trigger on every message.
	StrategyEveryMessage Strategy = "every_message"
	// StrategyTiered always runs cheap keyword scans but gates topic
	// checks behind a quick-keyword pre-filter.
	StrategyTiered Strategy = "tiered"
	// StrategySessionStart only evaluates time triggers.
	StrategySessionStart Strategy = "session_start"
)

// Trigger holds the firing conditions for one intention. Fields are used
// according to Type; the rest are ignored.
type Trigger struct {
	Type TriggerType `json:"type"`

	// Keyword triggers.
	Keywords      []string `json:"keywords,omitempty"`
	Regex         string   `json:"regex,omitempty"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`

	// Topic triggers.
	Topic         string   `json:"topic,omitempty"`
	Threshold     float64  `json:"threshold,omitempty"`
	QuickKeywords []string `json:"quick_keywords,omitempty"`

	// Time triggers.
	At    *time.Time `json:"at,omitempty"`
	After *time.Time `json:"after,omitempty"`

	// Context triggers. Keys match the env map passed to Check.
	Conditions map[string]string `json:"conditions,omitempty"`
}

// Intention is a pending reminder owned by one user.
type Intention struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	AgentID        string     `json:"agent_id"`
	Content        string     `json:"content"`
	Trigger        Trigger    `json:"trigger"`
	Priority       int        `json:"priority"`
	FireOnce       bool       `json:"fire_once"`
	Fired          bool       `json:"fired"`
	FiredAt        *time.Time `json:"fired_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	SourceMemoryID string     `json:"source_memory_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// FiredIntention reports one intention that fired during a Check pass.
type FiredIntention struct {
	ID             string      `json:"id"`
	Content        string      `json:"content"`
	TriggerType    TriggerType `json:"trigger_type"`
	Priority       int         `json:"priority"`
	Matched        []string    `json:"matched,omitempty"`
	SourceMemoryID string      `json:"source_memory_id,omitempty"`
}

var ErrInvalidIntention = errors.New("intention: user id and content are required")

// Store durably mirrors intention state. All registry writes through it are
// best-effort; the in-memory registry stays authoritative.
type Store interface {
	SaveIntention(ctx context.Context, in *Intention) error
	DeleteIntention(ctx context.Context, id string) error
}

// Registry keeps per-user intentions and evaluates them against incoming
// messages. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	byUser map[string][]*Intention

	store   Store
	agentID string
	logger  *zap.Logger
	now     func() time.Time
}

// RegistryOptions configures a Registry. Zero values pick defaults; Store is
// optional.
type RegistryOptions struct {
	AgentID string
	Store   Store
	Logger  *zap.Logger
	Now     func() time.Time
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.AgentID == "" {
		opts.AgentID = "clara"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		byUser:  make(map[string][]*Intention),
		store:   opts.Store,
		agentID: opts.AgentID,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// saveStored mirrors one intention to the store. Best-effort; runs with no
// registry lock held.
func (r *Registry) saveStored(ctx context.Context, in Intention) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveIntention(ctx, &in); err != nil {
		r.logger.Warn("intention store save failed",
			zap.String("intention", in.ID), zap.Error(err))
	}
}

// dropStored removes intentions from the store. Best-effort; runs with no
// registry lock held.
func (r *Registry) dropStored(ctx context.Context, ids []string) {
	if r.store == nil {
		return
	}
	for _, id := range ids {
		if err := r.store.DeleteIntention(ctx, id); err != nil {
			r.logger.Warn("intention store delete failed",
				zap.String("intention", id), zap.Error(err))
		}
	}
}

// CreateRequest describes a new intention.
type CreateRequest struct {
	UserID         string
	Content        string
	Trigger        Trigger
	Priority       int
	FireOnce       bool
	ExpiresAt      *time.Time
	SourceMemoryID string
}

// Create registers a new intention and returns a copy of it.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (Intention, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Content) == "" {
		return Intention{}, ErrInvalidIntention
	}
	if req.Trigger.Type == "" {
		req.Trigger.Type = TriggerKeyword
	}

	in := &Intention{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		AgentID:        r.agentID,
		Content:        req.Content,
		Trigger:        req.Trigger,
		Priority:       req.Priority,
		FireOnce:       req.FireOnce,
		ExpiresAt:      req.ExpiresAt,
		SourceMemoryID: req.SourceMemoryID,
		CreatedAt:      r.now(),
	}

	r.mu.Lock()
	r.byUser[req.UserID] = append(r.byUser[req.UserID], in)
	created := *in
	r.mu.Unlock()

	r.saveStored(ctx, created)
	r.logger.Info("intention created",
		zap.String("user", req.UserID),
		zap.String("intention", in.ID),
		zap.String("trigger", string(in.Trigger.Type)))
	return created, nil
}

// Check evaluates the user's pending intentions against a message and the
// ambient env (channel, time_of_day, and so on). Fired intentions are marked,
// fire-once ones removed, and results come back highest priority first.
func (r *Registry) Check(ctx context.Context, userID, message string, env map[string]string, strategy Strategy) []FiredIntention {
	if strategy == "" {
		strategy = StrategyTiered
	}
	now := r.now()

	r.mu.Lock()

	var fired []FiredIntention
	var saved []Intention
	var removed []string
	kept := r.byUser[userID][:0]
	for _, in := range r.byUser[userID] {
		if in.Fired {
			kept = append(kept, in)
			continue
		}
		if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
			removed = append(removed, in.ID)
			continue // expired, drop silently
		}
		if strategy == StrategySessionStart && in.Trigger.Type != TriggerTime {
			kept = append(kept, in)
			continue
		}

		hit, matched := evaluate(in.Trigger, message, env, now, strategy)
		if !hit {
			kept = append(kept, in)
			continue
		}

		in.Fired = true
		at := now
		in.FiredAt = &at
		fired = append(fired, FiredIntention{
			ID:             in.ID,
			Content:        in.Content,
			TriggerType:    in.Trigger.Type,
			Priority:       in.Priority,
			Matched:        matched,
			SourceMemoryID: in.SourceMemoryID,
		})
		if in.FireOnce {
			removed = append(removed, in.ID)
		} else {
			kept = append(kept, in)
			saved = append(saved, *in)
		}
	}
	r.byUser[userID] = kept
	r.mu.Unlock()

	for _, in := range saved {
		r.saveStored(ctx, in)
	}
	r.dropStored(ctx, removed)

	sort.SliceStable(fired, func(i, j int) bool { return fired[i].Priority > fired[j].Priority })
	if len(fired) > 0 {
		r.logger.Info("intentions fired",
			zap.String("user", userID),
			zap.Int("count", len(fired)))
	}
	return fired
}

func evaluate(t Trigger, message string, env map[string]string, now time.Time, strategy Strategy) (bool, []string) {
	switch t.Type {
	case TriggerKeyword:
		return matchKeywords(t, message)
	case TriggerTopic:
		if strategy == StrategyTiered && len(t.QuickKeywords) > 0 {
			lower := strings.ToLower(message)
			pre := false
			for _, kw := range t.QuickKeywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					pre = true
					break
				}
			}
			if !pre {
				return false, nil
			}
		}
		return matchTopic(t, message)
	case TriggerTime:
		return matchTime(t, now)
	case TriggerContext:
		return matchContext(t, env, now)
	}
	return false, nil
}

func matchKeywords(t Trigger, message string) (bool, []string) {
	check := message
	if !t.CaseSensitive {
		check = strings.ToLower(message)
	}
	var matched []string
	for _, kw := range t.Keywords {
		want := kw
		if !t.CaseSensitive {
			want = strings.ToLower(kw)
		}
		if strings.Contains(check, want) {
			matched = append(matched, kw)
		}
	}
	if t.Regex != "" {
		pat := t.Regex
		if !t.CaseSensitive {
			pat = "(?i)" + pat
		}
		if re, err := regexp.Compile(pat); err == nil && re.MatchString(message) {
			matched = append(matched, "regex:"+t.Regex)
		}
	}
	return len(matched) > 0, matched
}

func matchTopic(t Trigger, message string) (bool, []string) {
	if t.Topic == "" {
		return false, nil
	}
	threshold := t.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	topicWords := fields(t.Topic)
	if len(topicWords) == 0 {
		return false, nil
	}
	msgWords := fields(message)
	overlap := 0
	for w := range topicWords {
		if msgWords[w] {
			overlap++
		}
	}
	if float64(overlap)/float64(len(topicWords)) >= threshold {
		return true, []string{t.Topic}
	}
	return false, nil
}

func fields(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func matchTime(t Trigger, now time.Time) (bool, []string) {
	if t.At != nil && !now.Before(*t.At) {
		return true, []string{"at:" + t.At.Format(time.RFC3339)}
	}
	if t.After != nil && !now.Before(*t.After) {
		return true, []string{"after:" + t.After.Format(time.RFC3339)}
	}
	return false, nil
}

func matchContext(t Trigger, env map[string]string, now time.Time) (bool, []string) {
	if len(t.Conditions) == 0 {
		return false, nil
	}
	var matched []string
	for key, want := range t.Conditions {
		switch key {
		case "time_of_day":
			if !inTimeOfDay(now, strings.ToLower(want)) {
				return false, nil
			}
		case "day_of_week":
			if !strings.EqualFold(now.Weekday().String(), want) {
				return false, nil
			}
		default:
			got, ok := env[key]
			if !ok || !strings.EqualFold(got, want) {
				return false, nil
			}
		}
		matched = append(matched, key+"="+want)
	}
	return true, matched
}

func inTimeOfDay(now time.Time, period string) bool {
	h := now.Hour()
	switch period {
	case "morning":
		return h >= 6 && h < 12
	case "afternoon":
		return h >= 12 && h < 17
	case "evening":
		return h >= 17 && h < 21
	case "night":
		return h >= 21 || h < 6
	}
	return false
}

// List returns the user's intentions, highest priority first.
func (r *Registry) List(userID string, includeFired bool) []Intention {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Intention
	for _, in := range r.byUser[userID] {
		if in.Fired && !includeFired {
			continue
		}
		out = append(out, *in)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Delete removes an intention by id. When userID is non-empty, only that
// user's intentions are considered.
func (r *Registry) Delete(ctx context.Context, id, userID string) bool {
	r.mu.Lock()
	found := false
	for user, list := range r.byUser {
		if userID != "" && user != userID {
			continue
		}
		for i, in := range list {
			if in.ID == id {
				r.byUser[user] = append(list[:i], list[i+1:]...)
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	r.mu.Unlock()

	if found {
		r.dropStored(ctx, []string{id})
		r.logger.Info("intention deleted", zap.String("intention", id))
	}
	return found
}

// CleanupExpired removes every intention past its expiry and returns the
// number removed.
func (r *Registry) CleanupExpired(ctx context.Context) int {
	now := r.now()

	r.mu.Lock()
	var removed []string
	for user, list := range r.byUser {
		kept := list[:0]
		for _, in := range list {
			if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
				removed = append(removed, in.ID)
				continue
			}
			kept = append(kept, in)
		}
		r.byUser[user] = kept
	}
	r.mu.Unlock()

	r.dropStored(ctx, removed)
	if len(removed) > 0 {
		r.logger.Info("expired intentions cleaned up", zap.Int("count", len(removed)))
	}
	return len(removed)
}

// CascadeSupersession drops pending intentions whose source memory was just
// superseded, so stale facts stop resurfacing as reminders. It satisfies
// cortex.SupersessionHook.
func (r *Registry) CascadeSupersession(ctx context.Context, s *cortex.Supersession) {
	r.mu.Lock()
	list := r.byUser[s.UserID]
	kept := list[:0]
	var dropped []string
	for _, in := range list {
		if !in.Fired && in.SourceMemoryID == s.OldMemoryID {
			dropped = append(dropped, in.ID)
			continue
		}
		kept = append(kept, in)
	}
	r.byUser[s.UserID] = kept
	r.mu.Unlock()

	r.dropStored(ctx, dropped)
	if len(dropped) > 0 {
		r.logger.Info("intentions cascaded on supersession",
			zap.String("user", s.UserID),
			zap.String("memory", s.OldMemoryID),
			zap.Int("dropped", len(dropped)))
	}
}

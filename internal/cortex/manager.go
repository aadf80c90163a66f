package cortex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/contradiction"
	"github.com/BangRocket/mypalclara/internal/dynamics"
	"github.com/BangRocket/mypalclara/internal/similarity"
)

// Write-decision thresholds for prediction-error gating, applied to the
// word-overlap similarity between new content and the closest active memory.
const (
	skipThreshold      = 0.9 // near-duplicate, keep the existing record
	updateThreshold    = 0.6 // same fact restated; supersede as an update
	supersedeThreshold = 0.4 // related; supersede only on confident contradiction
)

// Contradiction verdicts below this confidence do not trigger supersession
// for loosely related memories.
const contradictionConfidenceFloor = 0.7

const (
	// DefaultWorkingCap bounds the per-user working memory ring buffer.
	DefaultWorkingCap = 50

	// DefaultSemanticTimeout bounds the long-term lookup inside
	// GetFullContext when the caller supplied no deadline.
	DefaultSemanticTimeout = 2 * time.Second

	defaultSessionTTL = 24 * time.Hour

	workingContextLimit   = 20
	semanticSearchLimit   = 20
	accessLogRetention    = 90 * 24 * time.Hour
	pruneCheckEvery       = 100
	semanticRankingWeight = 0.6
	dynamicsRankingWeight = 0.4
)

// userState is all per-user mutable state. Each user has its own mutex so
// operations for different users never contend; operations for the same user
// are serialized because Remember performs a read-then-write scan.
type userState struct {
	mu       sync.Mutex
	identity []*MemoryRecord // permanent tier, insertion order
	working  []*MemoryRecord // bounded ring, oldest active first
	session  map[string]string
}

// Options configures a Manager. Detector and Scheduler default to fresh
// instances; all collaborators are optional.
type Options struct {
	AgentID         string
	Detector        *contradiction.Detector
	Scheduler       *dynamics.Scheduler
	Semantic        SemanticStore
	Archive         Archive
	Mirror          Mirror
	Graph           Associations
	Logger          *zap.Logger
	WorkingCap      int
	SemanticTimeout time.Duration
	Now             func() time.Time
}

// Manager coordinates memory writes, supersession bookkeeping and retrieval
// composition. Construct one per deployment and pass it to callers; there is
// no package-level instance.
type Manager struct {
	agentID   string
	detector  *contradiction.Detector
	scheduler *dynamics.Scheduler
	semantic  SemanticStore
	archive   Archive
	mirror    Mirror
	graph     Associations
	logger    *zap.Logger

	workingCap      int
	semanticTimeout time.Duration
	now             func() time.Time

	mu    sync.Mutex
	users map[string]*userState

	hookMu sync.Mutex
	hooks  []SupersessionHook

	accessMu     sync.Mutex
	accessesSeen int
}

// NewManager builds a Manager from Options, filling in defaults.
func NewManager(opts Options) *Manager {
	if opts.AgentID == "" {
		opts.AgentID = "clara"
	}
	if opts.Detector == nil {
		opts.Detector = contradiction.NewDetector(nil, opts.Logger)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = dynamics.NewScheduler(dynamics.DefaultParams(), opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WorkingCap <= 0 {
		opts.WorkingCap = DefaultWorkingCap
	}
	if opts.SemanticTimeout <= 0 {
		opts.SemanticTimeout = DefaultSemanticTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		agentID:         opts.AgentID,
		detector:        opts.Detector,
		scheduler:       opts.Scheduler,
		semantic:        opts.Semantic,
		archive:         opts.Archive,
		mirror:          opts.Mirror,
		graph:           opts.Graph,
		logger:          opts.Logger,
		workingCap:      opts.WorkingCap,
		semanticTimeout: opts.SemanticTimeout,
		now:             opts.Now,
		users:           make(map[string]*userState),
	}
}

// OnSupersession registers a hook fired after each committed supersession.
func (m *Manager) OnSupersession(hook SupersessionHook) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

func (m *Manager) user(userID string) *userState {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.users[userID]
	if !ok {
		us = &userState{session: make(map[string]string)}
		m.users[userID] = us
	}
	return us
}

// Remember stores something noticed or decided worth keeping. It scans the
// user's active memories for near-duplicates and contradictions, records a
// supersession when the new content invalidates an old record, then routes
// the record to the identity tier (importance >= 1.0) or the bounded working
// ring with a TTL derived from importance.
func (m *Manager) Remember(ctx context.Context, userID, content string, importance float64, category string, metadata map[string]string) (*RememberResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	if math.IsNaN(importance) || math.IsInf(importance, 0) {
		return nil, fmt.Errorf("%w: importance must be a finite number", ErrInvalidInput)
	}

	us := m.user(userID)
	us.mu.Lock()

	now := m.now()
	m.expireWorkingLocked(us, now)
	compactLocked(us)

	action, target := m.decideActionLocked(us, content)
	if action == ActionSkip {
		us.mu.Unlock()
		m.logger.Debug("skipping near-duplicate memory",
			zap.String("user", userID),
			zap.String("existing", target.ID))
		return &RememberResult{Action: ActionSkip, Existing: target}, nil
	}

	rec := &MemoryRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		AgentID:    m.agentID,
		Content:    content,
		Category:   category,
		Importance: importance,
		Metadata:   metadata,
		Status:     StatusActive,
		CreatedAt:  now,
	}
	rec.Dynamics = dynamics.NewDynamics(rec.ID, userID, now)
	rec.Dynamics.Category = category

	result := &RememberResult{Action: action, Record: rec}

	ttlMinutes := ImportanceToTTL(importance)
	if ttlMinutes == PermanentTTL {
		rec.Dynamics.IsKey = true
		us.identity = append(us.identity, rec)
		m.logger.Info("promoted to identity",
			zap.String("user", userID),
			zap.String("memory", rec.ID),
			zap.String("category", category))
	} else {
		ttl := time.Duration(ttlMinutes) * time.Minute
		rec.ExpiresAt = now.Add(ttl)
		us.working = append(us.working, rec)
		m.evictOverflowLocked(us, userID)
		m.logger.Info("remembered",
			zap.String("user", userID),
			zap.String("memory", rec.ID),
			zap.Float64("importance", importance),
			zap.Int("ttl_minutes", ttlMinutes))
	}

	var sup *Supersession
	var demoted *dynamics.Dynamics
	var demotion dynamics.AccessLog
	if target != nil && (action == ActionSupersede || action == ActionUpdate) {
		sup, demoted, demotion = m.supersedeLocked(target, rec, action, now)
		result.Supersession = sup
	}

	compactLocked(us)
	archival := snapshotLocked(rec)
	us.mu.Unlock()

	// Collaborator writes run after the lock is released so a slow archive
	// or vector store cannot stall this user's fast path.
	if sup != nil {
		m.persistSupersession(ctx, sup, demoted, demotion)
	}
	m.persist(ctx, archival, ttlMinutes)
	return result, nil
}

// snapshotLocked copies a record and its dynamics so collaborator writes can
// read it without the user lock. Caller holds the lock.
func snapshotLocked(rec *MemoryRecord) *MemoryRecord {
	cp := *rec
	if rec.Dynamics != nil {
		d := *rec.Dynamics
		cp.Dynamics = &d
	}
	return &cp
}

// decideActionLocked runs prediction-error gating against the user's active
// memories. Caller holds the user lock.
func (m *Manager) decideActionLocked(us *userState, content string) (Action, *MemoryRecord) {
	var best *MemoryRecord
	var bestSim float64

	for _, rec := range activeRecords(us) {
		if sim := similarity.Calculate(content, rec.Content); sim > bestSim {
			bestSim, best = sim, rec
		}
	}
	if best == nil {
		return ActionCreate, nil
	}

	if bestSim >= skipThreshold {
		return ActionSkip, best
	}
	if bestSim >= updateThreshold {
		verdict := m.detector.Detect(content, best.Content)
		if verdict.Contradicts {
			return ActionSupersede, best
		}
		return ActionUpdate, best
	}
	if bestSim >= supersedeThreshold {
		verdict := m.detector.Detect(content, best.Content)
		if verdict.Contradicts && verdict.Confidence > contradictionConfidenceFloor {
			return ActionSupersede, best
		}
	}
	return ActionCreate, nil
}

// supersedeLocked marks old as superseded, builds the immutable supersession
// row and demotes the old record's dynamics. The old record is never deleted
// from the archive; it stays linked for the audit trail. Collaborator writes
// and hooks happen in persistSupersession, outside the user lock.
func (m *Manager) supersedeLocked(old, replacement *MemoryRecord, action Action, now time.Time) (*Supersession, *dynamics.Dynamics, dynamics.AccessLog) {
	reason := ReasonUpdate
	confidence := 1.0
	details := "restated fact replaced"
	if action == ActionSupersede {
		verdict := m.detector.Detect(replacement.Content, old.Content)
		reason = ReasonContradiction
		confidence = verdict.Confidence
		details = verdict.Explanation
	}

	old.Status = StatusSuperseded
	old.SupersededBy = replacement.ID

	sup := &Supersession{
		ID:          uuid.New().String(),
		OldMemoryID: old.ID,
		NewMemoryID: replacement.ID,
		UserID:      old.UserID,
		Reason:      reason,
		Confidence:  confidence,
		Details:     details,
		CreatedAt:   now,
	}

	var demoted *dynamics.Dynamics
	var entry dynamics.AccessLog
	if old.Dynamics != nil {
		entry = m.scheduler.RecordAccess(old.Dynamics, dynamics.GradeAgain, dynamics.SignalSuperseded, string(reason), now)
		d := *old.Dynamics
		demoted = &d
	}

	m.logger.Info("memory superseded",
		zap.String("user", old.UserID),
		zap.String("old", old.ID),
		zap.String("new", replacement.ID),
		zap.String("reason", string(reason)),
		zap.Float64("confidence", confidence))

	return sup, demoted, entry
}

// persistSupersession pushes a committed supersession to the collaborators
// and fires registered hooks. Runs with no user lock held.
func (m *Manager) persistSupersession(ctx context.Context, sup *Supersession, demoted *dynamics.Dynamics, entry dynamics.AccessLog) {
	if demoted != nil {
		m.archiveAccess(ctx, demoted, entry)
	}
	if m.archive != nil {
		if err := m.archive.SaveSupersession(ctx, sup); err != nil {
			m.logger.Warn("archive supersession failed", zap.Error(err))
		}
	}
	if m.graph != nil {
		if err := m.graph.RecordSupersession(ctx, sup); err != nil {
			m.logger.Warn("graph supersession failed", zap.Error(err))
		}
	}

	m.hookMu.Lock()
	hooks := append([]SupersessionHook(nil), m.hooks...)
	m.hookMu.Unlock()
	for _, hook := range hooks {
		hook(ctx, sup)
	}
}

// evictOverflowLocked enforces the ring cap: when active working entries
// exceed the cap, the oldest active entries are marked evicted.
func (m *Manager) evictOverflowLocked(us *userState, userID string) {
	active := 0
	for _, rec := range us.working {
		if rec.Status == StatusActive {
			active++
		}
	}
	for _, rec := range us.working {
		if active <= m.workingCap {
			break
		}
		if rec.Status == StatusActive {
			rec.Status = StatusEvicted
			active--
			m.logger.Debug("working memory evicted by overflow",
				zap.String("user", userID),
				zap.String("memory", rec.ID))
		}
	}
}

// expireWorkingLocked marks working entries whose TTL has lapsed. Decay is
// evaluated at read/write time; there is no background sweep.
func (m *Manager) expireWorkingLocked(us *userState, now time.Time) {
	for _, rec := range us.working {
		if rec.Status == StatusActive && !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
			rec.Status = StatusEvicted
		}
	}
}

// compactLocked drops terminal records from the in-memory tiers. The archive
// keeps the full audit trail; holding evicted and superseded entries in the
// slices would grow every per-user scan without bound. Caller holds the lock.
func compactLocked(us *userState) {
	us.identity = compactRecords(us.identity)
	us.working = compactRecords(us.working)
}

func compactRecords(recs []*MemoryRecord) []*MemoryRecord {
	kept := recs[:0]
	for _, rec := range recs {
		if rec.Status == StatusActive {
			kept = append(kept, rec)
		}
	}
	for i := len(kept); i < len(recs); i++ {
		recs[i] = nil
	}
	return kept
}

func activeRecords(us *userState) []*MemoryRecord {
	out := make([]*MemoryRecord, 0, len(us.identity)+len(us.working))
	for _, rec := range us.identity {
		if rec.Status == StatusActive {
			out = append(out, rec)
		}
	}
	for _, rec := range us.working {
		if rec.Status == StatusActive {
			out = append(out, rec)
		}
	}
	return out
}

// persist pushes the record to the optional collaborators. All failures are
// logged and swallowed; durable storage is advisory for the core.
func (m *Manager) persist(ctx context.Context, rec *MemoryRecord, ttlMinutes int) {
	if m.archive != nil {
		if err := m.archive.SaveRecord(ctx, rec); err != nil {
			m.logger.Warn("archive record failed", zap.Error(err))
		}
		if err := m.archive.SaveDynamics(ctx, rec.Dynamics); err != nil {
			m.logger.Warn("archive dynamics failed", zap.Error(err))
		}
	}
	if m.mirror != nil {
		if ttlMinutes == PermanentTTL {
			field := rec.Category
			if field == "" {
				field = rec.ID
			}
			if err := m.mirror.SetIdentityFact(ctx, rec.UserID, field, rec.Content); err != nil {
				m.logger.Warn("mirror identity failed", zap.Error(err))
			}
		} else {
			ttl := time.Duration(ttlMinutes) * time.Minute
			if err := m.mirror.AddWorking(ctx, rec.UserID, rec.Content, rec.Importance, ttl); err != nil {
				m.logger.Warn("mirror working failed", zap.Error(err))
			} else if err := m.mirror.TrimWorking(ctx, rec.UserID, int64(m.workingCap)); err != nil {
				m.logger.Warn("mirror working trim failed", zap.Error(err))
			}
		}
	}
	if m.semantic != nil {
		if err := m.semantic.Store(ctx, rec); err != nil {
			m.logger.Warn("semantic store failed", zap.Error(err))
		}
	}
	if m.graph != nil {
		if err := m.graph.RecordMemory(ctx, rec); err != nil {
			m.logger.Warn("graph record failed", zap.Error(err))
		}
	}
}

// GetQuickContext returns identity facts and session state only. It reads
// the in-process tier and never touches the long-term store.
func (m *Manager) GetQuickContext(userID string) (*QuickContext, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}

	us := m.user(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	facts := make([]string, 0, len(us.identity))
	for _, rec := range us.identity {
		if rec.Status != StatusActive {
			continue
		}
		if rec.Category != "" {
			facts = append(facts, rec.Category+": "+rec.Content)
		} else {
			facts = append(facts, rec.Content)
		}
	}

	session := make(map[string]string, len(us.session))
	for k, v := range us.session {
		session[k] = v
	}

	return &QuickContext{
		UserID:          userID,
		UserName:        sessionValue(session, "user_name", "unknown"),
		IdentityFacts:   facts,
		Session:         session,
		LastInteraction: session["last_active"],
	}, nil
}

// GetFullContext composes quick context with working memory and a long-term
// semantic lookup. The lookup is bounded by the caller's deadline (or the
// configured default); on failure or timeout the context is returned partial
// with Degraded set rather than failing the request.
func (m *Manager) GetFullContext(ctx context.Context, userID, query, projectID string) (*MemoryContext, error) {
	quick, err := m.GetQuickContext(userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	working := m.workingContext(userID, now)

	out := &MemoryContext{
		UserID:          userID,
		UserName:        quick.UserName,
		IdentityFacts:   quick.IdentityFacts,
		Session:         quick.Session,
		WorkingMemories: working,
	}

	if m.semantic == nil {
		return out, nil
	}

	searchCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, m.semanticTimeout)
		defer cancel()
	}

	hits, err := m.semantic.Search(searchCtx, userID, query, semanticSearchLimit, projectID)
	if err != nil {
		m.logger.Warn("long-term lookup degraded to partial context",
			zap.String("user", userID),
			zap.Error(err))
		out.Degraded = true
		return out, nil
	}

	out.RetrievedMemories = m.rankHits(userID, hits, now)
	return out, nil
}

// workingContext snapshots the active, unexpired working tier with decay
// recomputed, most important first.
func (m *Manager) workingContext(userID string, now time.Time) []WorkingMemory {
	us := m.user(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	m.expireWorkingLocked(us, now)
	compactLocked(us)

	out := make([]WorkingMemory, 0, len(us.working))
	for _, rec := range us.working {
		if rec.Status != StatusActive {
			continue
		}
		out = append(out, WorkingMemory{
			ID:             rec.ID,
			Content:        rec.Content,
			Category:       rec.Category,
			Importance:     rec.Importance,
			Retrievability: m.scheduler.Retrievability(rec.Dynamics, now),
			ExpiresAt:      rec.ExpiresAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if len(out) > workingContextLimit {
		out = out[:workingContextLimit]
	}
	return out
}

// rankHits scores long-term hits by blending semantic similarity with the
// dynamics score when the hit corresponds to a locally known record.
func (m *Manager) rankHits(userID string, hits []SemanticHit, now time.Time) []RetrievedMemory {
	us := m.user(userID)
	us.mu.Lock()
	byID := make(map[string]*MemoryRecord)
	for _, rec := range activeRecords(us) {
		byID[rec.ID] = rec
	}
	us.mu.Unlock()

	out := make([]RetrievedMemory, 0, len(hits))
	for _, h := range hits {
		rm := RetrievedMemory{
			ID:         h.ID,
			Content:    h.Content,
			Category:   h.Category,
			Importance: h.Importance,
			Similarity: h.Similarity,
			Score:      h.Similarity,
		}
		if rec, ok := byID[h.ID]; ok && rec.Dynamics != nil {
			rm.Retrievability = m.scheduler.Retrievability(rec.Dynamics, now)
			rm.Score = semanticRankingWeight*h.Similarity + dynamicsRankingWeight*m.scheduler.Score(rec.Dynamics, now)
		}
		out = append(out, rm)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// UpdateSession merges the non-nil fields of updates into session state.
// Nil values are explicit "don't overwrite" markers and are skipped.
func (m *Manager) UpdateSession(ctx context.Context, userID string, updates map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}

	clean := make(map[string]string, len(updates))
	for k, v := range updates {
		if v == nil {
			continue
		}
		clean[k] = fmt.Sprint(v)
	}
	if len(clean) == 0 {
		return nil
	}

	us := m.user(userID)
	us.mu.Lock()
	for k, v := range clean {
		us.session[k] = v
	}
	us.mu.Unlock()

	if m.mirror != nil {
		if err := m.mirror.SetSession(ctx, userID, clean, defaultSessionTTL); err != nil {
			m.logger.Warn("mirror session failed", zap.Error(err))
		}
	}
	return nil
}

// RecordAccess applies a graded access to one memory's dynamics. The
// read-modify-write happens under the owning user's lock so concurrent
// reinforcements cannot lose updates; the archive write happens after the
// lock is released.
func (m *Manager) RecordAccess(ctx context.Context, userID, memoryID string, grade int, signal dynamics.SignalType, note string) (dynamics.AccessLog, error) {
	if strings.TrimSpace(userID) == "" {
		return dynamics.AccessLog{}, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}

	us := m.user(userID)
	us.mu.Lock()
	rec := m.findLocked(us, memoryID)
	if rec == nil {
		us.mu.Unlock()
		return dynamics.AccessLog{}, fmt.Errorf("%w: %s", ErrNotFound, memoryID)
	}
	entry := m.scheduler.RecordAccess(rec.Dynamics, dynamics.ClampGrade(grade), signal, note, m.now())
	updated := *rec.Dynamics
	us.mu.Unlock()

	m.archiveAccess(ctx, &updated, entry)
	m.maybePrune(ctx)
	return entry, nil
}

func (m *Manager) findLocked(us *userState, memoryID string) *MemoryRecord {
	for _, rec := range us.identity {
		if rec.ID == memoryID {
			return rec
		}
	}
	for _, rec := range us.working {
		if rec.ID == memoryID {
			return rec
		}
	}
	return nil
}

func (m *Manager) archiveAccess(ctx context.Context, d *dynamics.Dynamics, entry dynamics.AccessLog) {
	if m.archive == nil {
		return
	}
	if err := m.archive.SaveDynamics(ctx, d); err != nil {
		m.logger.Warn("archive dynamics failed", zap.Error(err))
	}
	if err := m.archive.SaveAccessLog(ctx, entry); err != nil {
		m.logger.Warn("archive access log failed", zap.Error(err))
	}
}

// maybePrune trims old access logs every pruneCheckEvery recorded accesses.
func (m *Manager) maybePrune(ctx context.Context) {
	if m.archive == nil {
		return
	}
	m.accessMu.Lock()
	m.accessesSeen++
	due := m.accessesSeen%pruneCheckEvery == 0
	m.accessMu.Unlock()
	if !due {
		return
	}
	cutoff := m.now().Add(-accessLogRetention)
	n, err := m.archive.PruneAccessLogs(ctx, cutoff)
	if err != nil {
		m.logger.Warn("access log prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Info("pruned old access logs", zap.Int("count", n))
	}
}

// ActiveMemories returns the user's active records across both tiers,
// identity first. Superseded and evicted records are retained internally for
// the audit trail but never returned.
func (m *Manager) ActiveMemories(userID string) []*MemoryRecord {
	us := m.user(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	m.expireWorkingLocked(us, m.now())
	compactLocked(us)
	return activeRecords(us)
}

func sessionValue(session map[string]string, key, fallback string) string {
	if v, ok := session[key]; ok && v != "" {
		return v
	}
	return fallback
}

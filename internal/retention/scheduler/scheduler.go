// Package scheduler owns the retention lifecycle: it arms deletion timers,
// reconciles persisted schedule state at startup, sweeps the timeline on a
// periodic cadence, and executes deletions after a final policy check.
//
// All schedule mutation runs on one goroutine. External callers (HTTP
// handlers) submit commands over a channel and wait for the reply; they
// never touch the store or the timer queue directly.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
	"github.com/zebraclach/twitter-autodelete-bot/internal/events/bus"
	"github.com/zebraclach/twitter-autodelete-bot/internal/platform"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/policy"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/store"
)

// Common errors
var (
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNotRunning     = errors.New("scheduler is not running")
	ErrHalted         = errors.New("scheduler halted after authorization failure")
)

const eventSource = "retention-scheduler"

// Config holds scheduler configuration
type Config struct {
	SweepInterval time.Duration // How often to run the periodic sweep
	TimelineLimit int           // Max posts fetched per timeline scan
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		SweepInterval: 10 * time.Minute,
		TimelineLimit: 200,
	}
}

// ObserveResult reports what happened when a post was first observed.
type ObserveResult struct {
	Decision policy.Kind
	DeleteAt time.Time // set when Decision is policy.KindDeleteAt
}

// Scheduler is the single scheduling authority for post retention.
type Scheduler struct {
	gateway    platform.Gateway
	store      store.Store
	thresholds policy.Thresholds
	eventBus   bus.EventBus
	logger     *logger.Logger
	config     Config

	// tracked mirrors the persisted schedule; timers holds only
	// future-dated entries. Both are owned by the scheduling goroutine.
	tracked map[string]time.Time
	timers  *timerQueue

	commands chan command

	halted       atomic.Bool
	trackedCount atomic.Int64

	// now is swappable for tests
	now func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type command interface{}

type observeCmd struct {
	item  platform.ContentItem
	reply chan observeReply
}

type observeReply struct {
	result ObserveResult
	err    error
}

type purgeCmd struct {
	olderThan time.Duration
	reply     chan purgeReply
}

type purgeReply struct {
	deleted []string
	err     error
}

// New creates a scheduler. Start must be called before use.
func New(
	gateway platform.Gateway,
	st store.Store,
	thresholds policy.Thresholds,
	eventBus bus.EventBus,
	log *logger.Logger,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		gateway:    gateway,
		store:      st,
		thresholds: thresholds,
		eventBus:   eventBus,
		logger:     log.WithFields(zap.String("component", "retention-scheduler")),
		config:     cfg,
		tracked:    make(map[string]time.Time),
		timers:     newTimerQueue(),
		commands:   make(chan command),
		now:        time.Now,
	}
}

// Start loads the persisted schedule, reconciles it against the clock, and
// launches the scheduling loop. Reconciliation runs synchronously so that no
// overdue deletion is silently skipped because the process was offline when
// its timer would have fired.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.logger.Info("scheduler starting",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("retention_window", s.thresholds.Window))

	if err := s.reconcile(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	s.wg.Add(1)
	go s.run(ctx, stopCh)

	return nil
}

// Stop stops the scheduling loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns true while the scheduling loop is active.
func (s *Scheduler) IsRunning() bool {
	running, _ := s.runningState()
	return running
}

// runningState snapshots the running flag and stop channel together, so
// callers never read a stop channel from a different run of the scheduler.
func (s *Scheduler) runningState() (bool, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.stopCh
}

// Halted reports whether automatic deletion has been halted by an
// authorization failure. Only operator intervention (fixing credentials and
// restarting) clears it.
func (s *Scheduler) Halted() bool {
	return s.halted.Load()
}

// TrackedCount returns the number of posts currently tracked for deletion.
func (s *Scheduler) TrackedCount() int {
	return int(s.trackedCount.Load())
}

// Observe submits a post to the scheduling loop and waits for the decision.
// Observing an already-tracked post is a no-op that returns its existing
// planned time.
func (s *Scheduler) Observe(ctx context.Context, item platform.ContentItem) (ObserveResult, error) {
	running, stopCh := s.runningState()
	if !running {
		return ObserveResult{}, ErrNotRunning
	}

	cmd := observeCmd{item: item, reply: make(chan observeReply, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ObserveResult{}, ctx.Err()
	case <-stopCh:
		return ObserveResult{}, ErrNotRunning
	}

	select {
	case r := <-cmd.reply:
		return r.result, r.err
	case <-ctx.Done():
		return ObserveResult{}, ctx.Err()
	}
}

// Purge submits an operator-triggered bulk deletion of posts older than the
// cutoff and waits for the result. It shares the policy exemptions (popular
// ceiling, favorited) but bypasses schedule tracking entirely.
func (s *Scheduler) Purge(ctx context.Context, olderThan time.Duration) ([]string, error) {
	running, stopCh := s.runningState()
	if !running {
		return nil, ErrNotRunning
	}
	if s.halted.Load() {
		return nil, ErrHalted
	}

	cmd := purgeCmd{olderThan: olderThan, reply: make(chan purgeReply, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-stopCh:
		return nil, ErrNotRunning
	}

	select {
	case r := <-cmd.reply:
		return r.deleted, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the scheduling loop. It wakes for the earliest armed timer, the
// periodic sweep, or a submitted command.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("scheduling loop started", zap.Int("tracked", s.timers.Len()))

	// Initial timeline scan so posts created while the process was down
	// get tracked without waiting a full sweep interval.
	s.runSweep(ctx)

	for {
		var due <-chan time.Time
		var timer *time.Timer
		if next := s.timers.Peek(); next != nil {
			wait := time.Until(next.DueAt)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			due = timer.C
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduling loop stopping, context cancelled")
		case <-stopCh:
			s.logger.Info("scheduling loop stopping")
		case <-due:
			s.fireDue(ctx)
		case <-ticker.C:
			s.runSweep(ctx)
		case cmd := <-s.commands:
			s.handleCommand(ctx, cmd)
		}

		if timer != nil {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case observeCmd:
		result, err := s.observe(ctx, c.item)
		c.reply <- observeReply{result: result, err: err}
	case purgeCmd:
		deleted, err := s.purge(ctx, c.olderThan)
		c.reply <- purgeReply{deleted: deleted, err: err}
	}
}

// reconcile rebuilds in-memory state from the persisted schedule. Entries
// still in the future are re-armed for exactly their stored time; elapsed
// entries go through the final-check-then-delete sequence exactly once.
func (s *Scheduler) reconcile(ctx context.Context) error {
	entries, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	var overdue []string
	for id, deleteAt := range entries {
		s.tracked[id] = deleteAt
		if deleteAt.After(now) {
			s.timers.Schedule(id, deleteAt)
			s.logger.Info("re-armed deletion timer",
				zap.String("content_id", id),
				zap.Time("delete_at", deleteAt))
		} else {
			overdue = append(overdue, id)
		}
	}
	s.trackedCount.Store(int64(len(s.tracked)))

	for _, id := range overdue {
		s.logger.Info("planned deletion elapsed while offline", zap.String("content_id", id))
		s.finalCheckAndDelete(ctx, id, s.tracked[id])
	}

	s.logger.Info("schedule reconciled",
		zap.Int("loaded", len(entries)),
		zap.Int("overdue", len(overdue)))
	return nil
}

// observe handles a newly seen post. Runs on the scheduling goroutine.
func (s *Scheduler) observe(ctx context.Context, item platform.ContentItem) (ObserveResult, error) {
	if deleteAt, ok := s.tracked[item.ID]; ok {
		return ObserveResult{Decision: policy.KindDeleteAt, DeleteAt: deleteAt}, nil
	}

	now := s.now()

	// Timeline listings carry no impression count, so an aged post needs a
	// fresh engagement read before the popular-ceiling check can run.
	if !item.Favorited && !now.Before(item.CreatedAt.Add(s.thresholds.Window)) {
		engagement, err := s.gateway.EngagementCount(ctx, item.ID)
		if err != nil {
			if errors.Is(err, platform.ErrUnauthorized) {
				s.halt(ctx, err)
				return ObserveResult{}, ErrHalted
			}
			s.logger.Warn("engagement fetch failed, treating as zero",
				zap.String("content_id", item.ID),
				zap.Error(err))
			engagement = 0
		}
		item.Engagement = engagement
	}

	decision := s.thresholds.Decide(item, now)
	switch decision.Kind {
	case policy.KindDeleteAt:
		if err := s.track(ctx, item.ID, decision.At); err != nil {
			return ObserveResult{}, err
		}
	case policy.KindDeleteNow:
		// Never enters Tracked; deleted (or not) on the spot.
		s.deleteWithFinalCheck(ctx, item.ID, item.Engagement)
	case policy.KindExempt, policy.KindKeepTracked:
		// Untracked posts stay untracked; the next sweep re-discovers
		// them if their signals change.
	}
	return ObserveResult{Decision: decision.Kind, DeleteAt: decision.At}, nil
}

// runSweep performs one periodic sweep: discover new posts, fast-track
// tracked posts whose engagement crossed the early warning threshold, and
// run elapsed timers through the final check.
func (s *Scheduler) runSweep(ctx context.Context) {
	if s.halted.Load() {
		s.logger.Warn("sweep skipped, scheduler halted")
		return
	}
	s.logger.Debug("sweep starting", zap.Int("tracked", len(s.tracked)))

	// Phase 1: discover posts not yet tracked. A listing failure aborts
	// only discovery; tracked posts are still re-checked below.
	items, err := s.gateway.ListRecent(ctx, s.config.TimelineLimit)
	if err != nil {
		s.logger.Warn("timeline scan failed", zap.Error(err))
	} else {
		for i := range items {
			if _, ok := s.tracked[items[i].ID]; ok {
				continue
			}
			if _, err := s.observe(ctx, items[i]); err != nil {
				s.logger.Error("failed to observe post",
					zap.String("content_id", items[i].ID),
					zap.Error(err))
			}
		}
	}

	// Phase 2: fast-track tracked posts that went viral.
	for _, id := range s.trackedIDs() {
		if _, ok := s.tracked[id]; !ok {
			continue // removed earlier in this sweep
		}
		engagement, err := s.gateway.EngagementCount(ctx, id)
		if err != nil {
			// Fetch failure counts as zero engagement: failing open
			// toward deletion-eligible, never toward a false
			// popularity exemption.
			s.logger.Warn("engagement fetch failed, treating as zero",
				zap.String("content_id", id),
				zap.Error(err))
			engagement = 0
		}
		s.logger.Debug("engagement check",
			zap.String("content_id", id),
			zap.Int("engagement", engagement))
		if s.thresholds.FastTrack(engagement, false) {
			s.logger.Info("early warning threshold crossed",
				zap.String("content_id", id),
				zap.Int("engagement", engagement))
			s.deleteWithFinalCheck(ctx, id, engagement)
		}
		if s.halted.Load() {
			return
		}
	}

	// Phase 3: elapsed planned times that have no armed timer left
	// (kept-tracked posts, previously failed deletions).
	now := s.now()
	for _, id := range s.trackedIDs() {
		deleteAt, ok := s.tracked[id]
		if !ok || deleteAt.After(now) {
			continue
		}
		s.finalCheckAndDelete(ctx, id, deleteAt)
		if s.halted.Load() {
			return
		}
	}
}

// fireDue handles every timer whose due time has arrived.
func (s *Scheduler) fireDue(ctx context.Context) {
	if s.halted.Load() {
		return
	}
	for _, job := range s.timers.PopDue(s.now()) {
		s.finalCheckAndDelete(ctx, job.ContentID, job.DueAt)
		if s.halted.Load() {
			return
		}
	}
}

// finalCheckAndDelete re-evaluates a tracked post against current signals
// before committing to deletion. A tracked post is never deleted blindly on
// timer expiry: conditions may have changed while the timer was armed.
func (s *Scheduler) finalCheckAndDelete(ctx context.Context, id string, plannedAt time.Time) {
	engagement, err := s.gateway.EngagementCount(ctx, id)
	if err != nil {
		if errors.Is(err, platform.ErrUnauthorized) {
			s.halt(ctx, err)
			return
		}
		s.logger.Warn("engagement fetch failed, treating as zero",
			zap.String("content_id", id),
			zap.Error(err))
		engagement = 0
	}

	// The planned time is creation + window, so the creation time can be
	// recovered without storing it separately.
	item := platform.ContentItem{
		ID:         id,
		CreatedAt:  plannedAt.Add(-s.thresholds.Window),
		Engagement: engagement,
	}
	decision := s.thresholds.Decide(item, s.now())
	switch decision.Kind {
	case policy.KindDeleteNow:
		s.deleteWithFinalCheck(ctx, id, engagement)
	case policy.KindKeepTracked:
		s.logger.Info("post popular enough to keep, will re-check",
			zap.String("content_id", id),
			zap.Int("engagement", engagement))
		s.publish(ctx, bus.SubjectContentKept, "content.kept", map[string]interface{}{
			"content_id": id,
			"engagement": engagement,
		})
	case policy.KindDeleteAt:
		// Clock moved backwards or the entry was re-scheduled; re-arm and
		// keep the persisted planned time in step with the timer.
		if err := s.store.Upsert(ctx, id, decision.At); err != nil {
			s.logger.Error("failed to persist schedule entry",
				zap.String("content_id", id),
				zap.Error(err))
		}
		s.tracked[id] = decision.At
		s.timers.Schedule(id, decision.At)
	}
}

// deleteWithFinalCheck performs the last-second favorited check and then the
// destroy call, updating schedule state to match the outcome. Returns true
// if the post is gone from the platform (deleted here or already deleted).
func (s *Scheduler) deleteWithFinalCheck(ctx context.Context, id string, engagement int) bool {
	if s.halted.Load() {
		return false
	}

	favorited, err := s.gateway.FavoritedByOwner(ctx, id)
	if err != nil {
		if errors.Is(err, platform.ErrUnauthorized) {
			s.halt(ctx, err)
			return false
		}
		// Treated as not favorited: a transient check failure must not
		// leak content past the retention window. The trade-off is an
		// irreversible deletion despite a like the check missed.
		s.logger.Warn("favorited check failed, treating as not favorited",
			zap.String("content_id", id),
			zap.Error(err))
		favorited = false
	}
	if favorited {
		// Last-second save: the owner liked the post since scheduling.
		s.logger.Info("skipping delete, post favorited by owner",
			zap.String("content_id", id))
		s.untrack(ctx, id)
		s.publish(ctx, bus.SubjectContentExempted, "content.exempted", map[string]interface{}{
			"content_id": id,
		})
		return false
	}

	err = s.gateway.DeleteContent(ctx, id)
	switch {
	case err == nil:
		s.logger.Info("deleted post",
			zap.String("content_id", id),
			zap.Int("engagement", engagement))
	case errors.Is(err, platform.ErrNotFound):
		// Already deleted out-of-band; treat as success.
		s.logger.Info("post already gone", zap.String("content_id", id))
	case errors.Is(err, platform.ErrUnauthorized):
		s.halt(ctx, err)
		return false
	default:
		// Transient failure: stay tracked with the same planned time
		// and retry on the next sweep.
		s.logger.Warn("delete failed, will retry next sweep",
			zap.String("content_id", id),
			zap.Error(err))
		return false
	}

	s.untrack(ctx, id)
	s.publish(ctx, bus.SubjectContentDeleted, "content.deleted", map[string]interface{}{
		"content_id": id,
		"engagement": engagement,
	})
	return true
}

// purge deletes posts older than the cutoff that pass the exemption checks.
// Runs on the scheduling goroutine; bypasses tracking except that deleted
// posts also lose any schedule entry they might have.
func (s *Scheduler) purge(ctx context.Context, olderThan time.Duration) ([]string, error) {
	items, err := s.gateway.ListRecent(ctx, s.config.TimelineLimit)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-olderThan)
	deleted := make([]string, 0)
	for i := range items {
		item := items[i]
		if item.CreatedAt.After(cutoff) {
			continue
		}

		engagement, err := s.gateway.EngagementCount(ctx, item.ID)
		if err != nil {
			if errors.Is(err, platform.ErrUnauthorized) {
				s.halt(ctx, err)
				return deleted, ErrHalted
			}
			engagement = 0
		}
		item.Engagement = engagement

		if !s.thresholds.PurgeEligible(item, cutoff) {
			continue
		}
		if s.deleteWithFinalCheck(ctx, item.ID, engagement) {
			deleted = append(deleted, item.ID)
		}
		if s.halted.Load() {
			return deleted, ErrHalted
		}
	}

	s.logger.Info("purge finished",
		zap.Duration("older_than", olderThan),
		zap.Int("deleted", len(deleted)))
	return deleted, nil
}

// track persists a schedule entry and arms its timer.
func (s *Scheduler) track(ctx context.Context, id string, deleteAt time.Time) error {
	if err := s.store.Upsert(ctx, id, deleteAt); err != nil {
		return err
	}
	s.tracked[id] = deleteAt
	s.timers.Schedule(id, deleteAt)
	s.trackedCount.Store(int64(len(s.tracked)))

	s.logger.Info("scheduled deletion",
		zap.String("content_id", id),
		zap.Time("delete_at", deleteAt))
	s.publish(ctx, bus.SubjectContentScheduled, "content.scheduled", map[string]interface{}{
		"content_id": id,
		"delete_at":  deleteAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// untrack removes the schedule entry and any armed timer.
func (s *Scheduler) untrack(ctx context.Context, id string) {
	if err := s.store.Remove(ctx, id); err != nil {
		s.logger.Error("failed to remove schedule entry",
			zap.String("content_id", id),
			zap.Error(err))
	}
	delete(s.tracked, id)
	s.timers.Remove(id)
	s.trackedCount.Store(int64(len(s.tracked)))
}

// halt stops all further automatic deletion until an operator intervenes.
// Silent permanent failure would mean scheduled content is never cleaned
// up, so this is loud: error log plus a bus event.
func (s *Scheduler) halt(ctx context.Context, cause error) {
	if s.halted.Swap(true) {
		return
	}
	s.logger.Error("authorization failure, halting automatic deletion until operator intervenes",
		zap.Error(cause))
	s.publish(ctx, bus.SubjectSchedulerHalted, "scheduler.halted", map[string]interface{}{
		"reason": cause.Error(),
	})
}

func (s *Scheduler) trackedIDs() []string {
	ids := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) publish(ctx context.Context, subject, eventType string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, bus.NewEvent(eventType, eventSource, data)); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/telemetry"
)

// sessionKey is the durable-storage entry holding the serialized session.
const sessionKey = "tracking_session"

// defaultMaxAge is the restore ceiling for a persisted session.
const defaultMaxAge = 30 * time.Minute

// Observer receives a session snapshot after each mutation.
type Observer func(Session)

// Config carries the collaborators of a Store.
type Config struct {
	Store     agent.KVStore
	Clock     agent.Clock
	IDs       agent.IDGenerator
	Collector Collector
	Logger    *zap.Logger
	// MaxAge is the restore ceiling for persisted sessions. Zero means
	// the 30-minute default.
	MaxAge time.Duration
}

// Store owns the active session. All mutations go through its methods,
// which serialize access and persist the session after every change.
type Store struct {
	kv        agent.KVStore
	clock     agent.Clock
	ids       agent.IDGenerator
	collector Collector
	logger    *zap.Logger
	maxAge    time.Duration

	mu          sync.Mutex
	session     *Session
	currentPage string
	observers   []Observer

	// flushing is the single-flight guard for the collector submission.
	// It is deliberately not persisted: a restored session that already
	// reached its goal is never restored at all.
	flushing atomic.Bool
}

// New builds a Store. Initialize must be called before recording events.
func New(cfg Config) *Store {
	telemetry.Init()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	return &Store{
		kv:        cfg.Store,
		clock:     cfg.Clock,
		ids:       cfg.IDs,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		maxAge:    cfg.MaxAge,
	}
}

// Initialize adopts the persisted session when it is present, younger than
// the restore ceiling, and not already terminal. Otherwise it synthesizes
// a fresh one.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.kv.Get(ctx, sessionKey)
	if err != nil {
		return fmt.Errorf("reading persisted session: %w", err)
	}
	if raw != nil {
		var restored Session
		if err := json.Unmarshal(raw, &restored); err != nil {
			s.logger.Warn("discarding unreadable persisted session", zap.Error(err))
		} else if restored.GoalReached {
			s.logger.Debug("discarding completed session", zap.String("session_id", restored.ID))
		} else if restored.expired(s.clock.Now(), s.maxAge) {
			s.logger.Debug("discarding expired session", zap.String("session_id", restored.ID))
		} else {
			s.session = &restored
			if n := len(restored.UserPath); n > 0 {
				s.currentPage = restored.UserPath[n-1]
			}
			s.logger.Info("restored session",
				zap.String("session_id", restored.ID),
				zap.Int("total_clicks", restored.TotalClicks),
			)
			s.notifyLocked()
			return nil
		}
	}
	return s.freshSessionLocked(ctx)
}

// RecordClick appends a click with the next sequence number and the page
// path current at mutation time. No-op once the goal is reached.
func (s *Store) RecordClick(ctx context.Context, category, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.GoalReached {
		return nil
	}
	s.session.ClickPath = append(s.session.ClickPath, ClickEvent{
		Sequence:  len(s.session.ClickPath) + 1,
		Category:  category,
		Text:      text,
		Path:      s.currentPage,
		Timestamp: s.clock.Now().UnixMilli(),
	})
	s.session.TotalClicks = len(s.session.ClickPath)
	telemetry.ObserveClick()
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.notifyLocked()
	return nil
}

// RecordPageVisit appends path to the visited-page trail, collapsing
// consecutive duplicates. No-op once the goal is reached.
func (s *Store) RecordPageVisit(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.GoalReached {
		return nil
	}
	s.currentPage = path
	if n := len(s.session.UserPath); n > 0 && s.session.UserPath[n-1] == path {
		return nil
	}
	s.session.UserPath = append(s.session.UserPath, path)
	telemetry.ObservePageVisit()
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.notifyLocked()
	return nil
}

// RecordGoalReached closes the session and submits it to the collector
// asynchronously, at most once. Submission failures are logged, never
// retried, and never revert the goal state.
func (s *Store) RecordGoalReached(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.GoalReached {
		return nil
	}
	if !s.flushing.CompareAndSwap(false, true) {
		return nil
	}
	s.session.EndTime = s.clock.Now().UnixMilli()
	s.session.GoalReached = true
	if err := s.persistLocked(ctx); err != nil {
		// Roll the transition back so a later call can complete it;
		// otherwise the session would be frozen without ever flushing.
		s.session.EndTime = 0
		s.session.GoalReached = false
		s.flushing.Store(false)
		return err
	}
	s.notifyLocked()

	snapshot := s.session.clone()
	go s.flush(context.WithoutCancel(ctx), snapshot)
	return nil
}

// flush runs once per completed session, off the event-handling path.
func (s *Store) flush(ctx context.Context, snapshot Session) {
	err := s.collector.Submit(ctx, snapshot)
	if err != nil {
		telemetry.ObserveSessionFlush("failure")
		s.logger.Warn("session submission failed",
			zap.String("session_id", snapshot.ID),
			zap.Error(err),
		)
	} else {
		telemetry.ObserveSessionFlush("success")
		s.logger.Info("session submitted",
			zap.String("session_id", snapshot.ID),
			zap.Int("total_clicks", snapshot.TotalClicks),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushing.Store(false)
	if s.session == nil || s.session.ID != snapshot.ID {
		return
	}
	s.session.FlushAttempted = true
	if err := s.persistLocked(ctx); err != nil {
		s.logger.Warn("persisting flushed session failed", zap.Error(err))
	}
}

// Reset discards the persisted session and starts a fresh one.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, sessionKey); err != nil {
		return fmt.Errorf("discarding persisted session: %w", err)
	}
	return s.freshSessionLocked(ctx)
}

// Stats derives a read-only view of the session without mutating it.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Stats{}, fmt.Errorf("session not initialized")
	}
	end := s.session.EndTime
	if end == 0 {
		end = s.clock.Now().UnixMilli()
	}
	distinct := make(map[string]struct{}, len(s.session.UserPath))
	for _, p := range s.session.UserPath {
		distinct[p] = struct{}{}
	}
	return Stats{
		TotalClicks:     s.session.TotalClicks,
		SessionDuration: end - s.session.StartTime,
		PagesVisited:    len(distinct),
		GoalReached:     s.session.GoalReached,
	}, nil
}

// Session returns a snapshot of the current session, or false when none
// has been initialized.
func (s *Store) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	return s.session.clone(), true
}

// Subscribe registers an observer called with a snapshot after each
// mutation. Observers must not call back into the Store.
func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) freshSessionLocked(ctx context.Context) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generating session id: %w", err)
	}
	s.session = &Session{
		ID:        id,
		StartTime: s.clock.Now().UnixMilli(),
		ClickPath: []ClickEvent{},
		UserPath:  []string{},
	}
	s.currentPage = ""
	s.flushing.Store(false)
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.logger.Info("started session", zap.String("session_id", id))
	s.notifyLocked()
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(s.session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.kv.Set(ctx, sessionKey, raw); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

func (s *Store) notifyLocked() {
	if len(s.observers) == 0 {
		return
	}
	snapshot := s.session.clone()
	for _, fn := range s.observers {
		fn(snapshot)
	}
}

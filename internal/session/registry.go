package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/metrics"
	"github.com/spigell/screener/internal/proctoring"
	"github.com/spigell/screener/internal/store"
)

var ErrRegistryClosed = errors.New("session registry is closed")

// Deps are the collaborators shared by every session of a registry.
type Deps struct {
	Extractor ai.ProfileExtractor
	Generator ai.QuestionGenerator
	Scorer    ai.Scorer
	Store     store.Store
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
	Now       func() time.Time
	NewID     func() string
}

// Registry owns the live sessions. The map is guarded by mu; each session
// serializes its own transitions.
type Registry struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	evictors map[string]*time.Timer
	closed   bool
}

func NewRegistry(cfg Config, deps Deps) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid interview config: %w", err)
	}
	if deps.Generator == nil || deps.Scorer == nil {
		return nil, errors.New("question generator and scorer are required")
	}
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Registry{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		sessions: make(map[string]*Session),
		evictors: make(map[string]*time.Timer),
	}, nil
}

// Admit extracts a profile from resume text and creates a session for it.
func (r *Registry) Admit(ctx context.Context, resumeText string) (Snapshot, error) {
	if r.deps.Extractor == nil {
		return Snapshot{}, errors.New("profile extractor is not configured")
	}

	profile, err := r.deps.Extractor.Extract(ctx, resumeText)
	if err != nil {
		var extractionErr *interview.ExtractionError
		if !errors.As(err, &extractionErr) {
			err = &interview.ExtractionError{Reason: "extraction failed", Err: err}
		}
		r.logger.Warn("resume rejected", zap.Error(err))
		return Snapshot{}, err
	}

	return r.Create(ctx, profile)
}

// Create registers a CREATED session for profile.
func (r *Registry) Create(ctx context.Context, profile interview.CandidateProfile) (Snapshot, error) {
	profile = profile.Normalize()
	id := r.deps.NewID()

	s := newSession(id, profile, r.cfg, collaborators{
		generator: r.deps.Generator,
		scorer:    r.deps.Scorer,
		store:     r.deps.Store,
		metrics:   r.deps.Metrics,
		now:       r.deps.Now,
	}, r.logger)
	s.onFinish = r.scheduleEviction

	if err := r.deps.Store.Create(ctx, id, profile, s.createdAt); err != nil {
		s.cancel()
		return Snapshot{}, fmt.Errorf("create session record: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.cancel()
		return Snapshot{}, ErrRegistryClosed
	}
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		s.cancel()
		return Snapshot{}, fmt.Errorf("session id %s is already in use", id)
	}
	// The timer callback takes the session lock, so arming must hold it too.
	s.lock <- struct{}{}
	s.armTimer()
	s.release()
	r.sessions[id] = s
	r.mu.Unlock()

	s.logger.Info("session created",
		zap.Int("skills", len(profile.Skills)),
		zap.Int("projects", len(profile.Projects)),
	)
	return s.Snapshot(), nil
}

func (r *Registry) get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interview.ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *Registry) Start(ctx context.Context, id string) (Reply, error) {
	s, err := r.get(id)
	if err != nil {
		return Reply{}, err
	}
	return s.Start(ctx)
}

func (r *Registry) SubmitUtterance(ctx context.Context, id, text string) (Reply, error) {
	s, err := r.get(id)
	if err != nil {
		return Reply{}, err
	}
	return s.SubmitUtterance(ctx, text)
}

// ReportProctoringEvent parses kind and applies it to the session's monitor.
func (r *Registry) ReportProctoringEvent(ctx context.Context, id, kind string) (proctoring.Verdict, error) {
	s, err := r.get(id)
	if err != nil {
		return proctoring.Verdict{}, err
	}
	parsed, err := interview.ParseEventKind(kind)
	if err != nil {
		return s.monitor.Status(), fmt.Errorf("%w: %q", err, kind)
	}
	return s.ReportEvent(ctx, parsed)
}

func (r *Registry) Settle(ctx context.Context, id string) (Reply, error) {
	s, err := r.get(id)
	if err != nil {
		return Reply{}, err
	}
	return s.Settle(ctx)
}

func (r *Registry) Cancel(ctx context.Context, id string) (Reply, error) {
	s, err := r.get(id)
	if err != nil {
		return Reply{}, err
	}
	return s.Cancel(ctx)
}

func (r *Registry) Snapshot(id string) (Snapshot, error) {
	s, err := r.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// List returns snapshots of all retained sessions, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) scheduleEviction(id string) {
	if r.cfg.Retention <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.evictors[id] = time.AfterFunc(r.cfg.Retention, func() { r.evict(id) })
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.evictors, id)
	r.logger.Debug("session evicted", zap.String("session_id", id))
}

// Close abandons every open session and stops eviction timers.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	for id, timer := range r.evictors {
		timer.Stop()
		delete(r.evictors, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range open {
		if _, err := s.abandon(ctx, reasonShutdown); err != nil && !errors.Is(err, interview.ErrSessionClosed) {
			errs = append(errs, fmt.Errorf("abandon %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

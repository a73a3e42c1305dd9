// Package session runs interview sessions: it owns the lifecycle state machine,
// serializes every transition of a session and finalizes outcomes to the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/metrics"
	"github.com/spigell/screener/internal/proctoring"
	"github.com/spigell/screener/internal/store"
)

const storeTimeout = 5 * time.Second

const (
	reasonClosing     = "closing turn"
	reasonMaxReached  = "question limit reached"
	reasonProctoring  = "proctoring threshold reached"
	reasonCancelled   = "cancelled"
	reasonInactivity  = "inactivity timeout"
	reasonShutdown    = "shutdown"
	reasonServiceDown = "generation retries exhausted"
)

// Reply is what the candidate-facing side renders after an operation.
type Reply struct {
	Question         string
	SuggestedReplies []string
	Status           interview.Status
	Strikes          int
	QuestionIndex    int
	Report           *interview.ScoreReport
	Notice           string
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	ID            string
	Profile       interview.CandidateProfile
	Status        interview.Status
	Strikes       int
	QuestionIndex int
	Transcript    []interview.Turn
	Outcome       *interview.Outcome
	CreatedAt     time.Time
}

type collaborators struct {
	generator ai.QuestionGenerator
	scorer    ai.Scorer
	store     store.Store
	metrics   *metrics.Recorder
	now       func() time.Time
}

// Session is one candidate's interview. All transitions hold lock, a one-slot
// channel so waiters queue and can give up through their context. Fields
// below mu are additionally guarded by mu for lock-free snapshots.
type Session struct {
	id        string
	profile   interview.CandidateProfile
	cfg       Config
	deps      collaborators
	retry     retryPolicy
	logger    *zap.Logger
	monitor   *proctoring.Monitor
	createdAt time.Time
	onFinish  func(id string)

	lock chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	timer    *time.Timer
	timerSeq uint64

	mu            sync.RWMutex
	status        interview.Status
	transcript    interview.Transcript
	questionIndex int
	lastQuestion  string
	lastReplies   []string
	outcome       *interview.Outcome
}

func newSession(id string, profile interview.CandidateProfile, cfg Config, deps collaborators, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	log = logger.WithSession(log, id, profile.DisplayName())

	return &Session{
		id:        id,
		profile:   profile.Clone(),
		cfg:       cfg,
		deps:      deps,
		retry:     newRetryPolicy(cfg, log, deps.metrics),
		logger:    log,
		monitor:   proctoring.New(cfg.MaxStrikes),
		createdAt: deps.now(),
		lock:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		status:    interview.StatusCreated,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.lock
}

func (s *Session) currentStatus() interview.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// cycleContext is cancelled by either the caller or the session.
func (s *Session) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cycleCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return cycleCtx, func() {
		stop()
		cancel()
	}
}

// Start moves CREATED to ACTIVE and arms proctoring.
func (s *Session) Start(ctx context.Context) (Reply, error) {
	if err := s.acquire(ctx); err != nil {
		return Reply{}, err
	}
	defer s.release()

	status := s.currentStatus()
	if status.Terminal() {
		return s.reply(), interview.ErrSessionClosed
	}
	next, err := status.Transition(interview.StatusActive)
	if err != nil {
		return s.reply(), err
	}

	s.stopTimer()
	s.mu.Lock()
	s.status = next
	s.mu.Unlock()
	s.monitor.Arm()
	s.deps.metrics.SessionStarted(ctx)
	s.logger.Info("interview started", logger.Status(next.String()))

	if !s.cfg.OpenWithQuestion {
		greeting := fmt.Sprintf("Hello %s. I have reviewed your resume. Shall we begin?", s.profile.DisplayName())
		s.mu.Lock()
		s.lastQuestion = greeting
		s.lastReplies = []string{"Yes, let's begin", "Could you repeat that?"}
		s.mu.Unlock()
		s.armTimer()
		return s.reply(), nil
	}

	return s.advance(ctx)
}

// SubmitUtterance runs one cycle: record the answer, check proctoring, generate
// the next interviewer turn. An empty utterance records nothing.
func (s *Session) SubmitUtterance(ctx context.Context, text string) (Reply, error) {
	if err := s.acquire(ctx); err != nil {
		return Reply{}, err
	}
	defer s.release()

	switch status := s.currentStatus(); {
	case status.Terminal():
		return s.reply(), interview.ErrSessionClosed
	case status == interview.StatusCreated:
		return s.reply(), interview.ErrNotStarted
	}

	s.stopTimer()

	if text = strings.TrimSpace(text); text != "" {
		s.appendTurn(ctx, interview.SpeakerCandidate, text)
	}

	return s.advance(ctx)
}

// Settle is a cycle boundary without an utterance: it only acts on a
// disqualifying proctoring verdict.
func (s *Session) Settle(ctx context.Context) (Reply, error) {
	if err := s.acquire(ctx); err != nil {
		return Reply{}, err
	}
	defer s.release()

	if s.currentStatus() == interview.StatusActive && s.monitor.Status().Disqualified {
		s.disqualify(ctx)
	}
	return s.reply(), nil
}

// Cancel abandons the session without scoring. An in-flight generation or
// scoring call is aborted.
func (s *Session) Cancel(ctx context.Context) (Reply, error) {
	return s.abandon(ctx, reasonCancelled)
}

func (s *Session) abandon(ctx context.Context, reason string) (Reply, error) {
	if s.currentStatus().Terminal() {
		return s.reply(), interview.ErrSessionClosed
	}

	s.cancel()

	// The in-flight call is aborted by now, so the lock is released promptly.
	if err := s.acquire(context.WithoutCancel(ctx)); err != nil {
		return Reply{}, err
	}
	defer s.release()

	if s.currentStatus().Terminal() {
		return s.reply(), interview.ErrSessionClosed
	}
	s.finalize(ctx, interview.StatusAbandoned, reason, nil)
	return s.reply(), nil
}

// ReportEvent applies a proctoring event immediately, without the session lock.
func (s *Session) ReportEvent(ctx context.Context, kind interview.EventKind) (proctoring.Verdict, error) {
	verdict, err := s.monitor.RecordKind(kind, s.deps.now())
	if err != nil {
		return verdict, err
	}
	if !verdict.Counted {
		return verdict, nil
	}

	s.deps.metrics.ProctoringStrike(ctx, string(kind))
	s.logger.Warn("proctoring violation",
		zap.String("kind", string(kind)),
		zap.Int("strikes", verdict.Strikes),
		zap.Int("remaining", verdict.Remaining()),
		zap.Bool("disqualified", verdict.Disqualified),
	)
	return verdict, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:            s.id,
		Profile:       s.profile.Clone(),
		Status:        s.status,
		Strikes:       s.monitor.Status().Strikes,
		QuestionIndex: s.questionIndex,
		Transcript:    s.transcript.Turns(),
		CreatedAt:     s.createdAt,
	}
	if s.outcome != nil {
		outcome := *s.outcome
		snap.Outcome = &outcome
	}
	return snap
}

// advance runs steps two and three of a cycle. It expects the lock to be held
// and the status to be ACTIVE.
func (s *Session) advance(ctx context.Context) (Reply, error) {
	if s.monitor.Status().Disqualified {
		s.disqualify(ctx)
		return s.reply(), nil
	}

	cycleCtx, cancel := s.cycleContext(ctx)
	defer cancel()

	s.mu.RLock()
	req := ai.TurnRequest{
		Profile:       s.profile.Clone(),
		Transcript:    interview.NewTranscript(s.transcript.Turns()...),
		Strikes:       s.monitor.Status().Strikes,
		QuestionIndex: s.questionIndex,
		MinQuestions:  s.cfg.MinQuestions,
		MaxQuestions:  s.cfg.MaxQuestions,
		ForceClosing:  s.questionIndex+1 >= s.cfg.MaxQuestions,
	}
	s.mu.RUnlock()

	turn, err := run(cycleCtx, s.retry, opQuestion, func(ctx context.Context) (*ai.GeneratedTurn, error) {
		turn, err := s.deps.generator.NextTurn(ctx, req)
		if err != nil {
			return nil, err
		}
		if turn == nil || strings.TrimSpace(turn.Question) == "" {
			return nil, interview.NewMalformedError(errors.New("generated turn has no question text"))
		}
		return turn, nil
	})
	if err != nil {
		if cycleCtx.Err() != nil {
			s.logger.Info("cycle aborted", zap.Error(err))
			s.armTimer()
			return s.reply(), err
		}
		s.logger.Error("question generation failed", zap.Error(err))
		s.finalize(ctx, interview.StatusServiceError, reasonServiceDown, nil)
		return s.reply(), nil
	}

	// A verdict that turned disqualifying during the call drops the generated turn.
	if s.monitor.Status().Disqualified {
		s.logger.Info("generated turn discarded after disqualification")
		s.disqualify(ctx)
		return s.reply(), nil
	}

	question := strings.TrimSpace(turn.Question)
	s.appendTurn(ctx, interview.SpeakerInterviewer, question)
	s.deps.metrics.QuestionGenerated(ctx)

	s.mu.Lock()
	s.questionIndex++
	index := s.questionIndex
	s.lastQuestion = question
	s.lastReplies = append([]string{}, turn.SuggestedReplies...)
	s.mu.Unlock()

	s.logger.Debug("interviewer turn recorded",
		zap.Int("question_index", index),
		zap.Bool("closing", turn.IsClosing),
		zap.Bool("forced", req.ForceClosing),
	)

	if (turn.IsClosing || req.ForceClosing) && index >= s.cfg.MinQuestions {
		reason := reasonClosing
		if !turn.IsClosing {
			reason = reasonMaxReached
		}
		return s.complete(ctx, reason)
	}

	s.armTimer()
	return s.reply(), nil
}

func (s *Session) complete(ctx context.Context, reason string) (Reply, error) {
	report, err := s.score(ctx)
	if err != nil {
		// Only cancellation reaches here; the canceller finalizes.
		s.armTimer()
		return s.reply(), err
	}
	s.finalize(ctx, interview.StatusCompleted, reason, report)
	return s.reply(), nil
}

func (s *Session) disqualify(ctx context.Context) {
	s.monitor.Seal()

	var report *interview.ScoreReport
	if s.cfg.ScoreDisqualified {
		var err error
		if report, err = s.score(ctx); err != nil {
			report = interview.ScoringUnavailable()
		}
	}
	s.finalize(ctx, interview.StatusDisqualified, reasonProctoring, report)
}

// score runs the scorer under the session context so a slow client does not
// lose the result. Exhausted retries yield the sentinel report.
func (s *Session) score(ctx context.Context) (*interview.ScoreReport, error) {
	scoreCtx, cancel := s.cycleContext(context.WithoutCancel(ctx))
	defer cancel()

	s.mu.RLock()
	transcript := interview.NewTranscript(s.transcript.Turns()...)
	s.mu.RUnlock()

	report, err := run(scoreCtx, s.retry, opScore, func(ctx context.Context) (*interview.ScoreReport, error) {
		report, err := s.deps.scorer.Score(ctx, s.profile.Clone(), transcript)
		if err != nil {
			return nil, err
		}
		if report == nil || report.Score < interview.MinScore || report.Score > interview.MaxScore {
			return nil, interview.NewMalformedError(errors.New("score report out of range"))
		}
		return report, nil
	})
	if err != nil {
		if scoreCtx.Err() != nil {
			return nil, err
		}
		s.logger.Error("scoring failed, using sentinel report", zap.Error(err))
		return interview.ScoringUnavailable(), nil
	}
	return report, nil
}

func (s *Session) appendTurn(ctx context.Context, speaker interview.Speaker, text string) {
	turn := interview.Turn{Speaker: speaker, Text: text, Timestamp: s.deps.now()}

	s.mu.Lock()
	s.transcript.Append(turn)
	s.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.deps.store.AppendTurn(storeCtx, s.id, turn); err != nil {
		s.logger.Warn("store append failed", zap.String("speaker", string(speaker)), zap.Error(err))
	}
}

// finalize performs the terminal transition. Store failures are logged only.
func (s *Session) finalize(ctx context.Context, status interview.Status, reason string, report *interview.ScoreReport) {
	s.stopTimer()
	s.monitor.Seal()

	s.mu.Lock()
	next, err := s.status.Transition(status)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("refusing transition", zap.Error(err))
		return
	}
	s.status = next
	outcome := interview.Outcome{
		Status:        next,
		Strikes:       s.monitor.Status().Strikes,
		QuestionCount: s.questionIndex,
		Report:        report,
		Reason:        reason,
		Events:        s.monitor.Events(),
		EndedAt:       s.deps.now(),
	}
	s.outcome = &outcome
	s.lastReplies = nil
	s.mu.Unlock()

	s.cancel()

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.deps.store.Finalize(storeCtx, s.id, outcome); err != nil {
		s.logger.Warn("store finalize failed", zap.Error(err))
	}

	s.deps.metrics.SessionFinished(ctx, next.String())

	fields := []zap.Field{
		logger.Status(next.String()),
		zap.String("reason", reason),
		zap.Int("strikes", outcome.Strikes),
		zap.Int("questions", outcome.QuestionCount),
	}
	if report != nil {
		fields = append(fields, zap.Int("score", report.Score), zap.Bool("score_unavailable", report.Unavailable))
	}
	s.logger.Info("interview finished", fields...)

	if s.onFinish != nil {
		s.onFinish(s.id)
	}
}

func (s *Session) reply() Reply {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := Reply{
		Status:        s.status,
		Strikes:       s.monitor.Status().Strikes,
		QuestionIndex: s.questionIndex,
	}
	if s.outcome != nil {
		r.Report = s.outcome.Report
		r.Strikes = s.outcome.Strikes
	}

	switch s.status {
	case interview.StatusCreated:
		r.Notice = "Enter fullscreen to begin the interview."
	case interview.StatusActive:
		r.Question = s.lastQuestion
		r.SuggestedReplies = append([]string{}, s.lastReplies...)
	case interview.StatusCompleted:
		r.Question = s.lastQuestion
		r.Notice = "The interview is complete. Thank you for your time."
	case interview.StatusDisqualified:
		r.Notice = fmt.Sprintf("The interview was terminated after %d proctoring violations.", r.Strikes)
	case interview.StatusAbandoned:
		r.Notice = "The interview was ended before completion."
	case interview.StatusServiceError:
		r.Notice = "The interview service is temporarily unavailable. Please try again later."
	}
	if r.SuggestedReplies == nil {
		r.SuggestedReplies = []string{}
	}
	return r
}

// armTimer (re)starts the inactivity window. Callers hold the lock.
func (s *Session) armTimer() {
	if s.cfg.InactivityTimeout <= 0 || s.currentStatus().Terminal() {
		return
	}
	s.stopTimer()
	s.timerSeq++
	seq := s.timerSeq
	s.timer = time.AfterFunc(s.cfg.InactivityTimeout, func() { s.expire(seq) })
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) expire(seq uint64) {
	if err := s.acquire(s.ctx); err != nil {
		return
	}
	defer s.release()

	if seq != s.timerSeq || s.currentStatus().Terminal() {
		return
	}

	ctx := context.Background()
	if s.currentStatus() == interview.StatusActive && s.monitor.Status().Disqualified {
		s.logger.Info("inactivity timeout on a disqualified session")
		s.disqualify(ctx)
		return
	}
	s.finalize(ctx, interview.StatusAbandoned, reasonInactivity, nil)
}

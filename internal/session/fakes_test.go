package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/store"
)

var testClock = time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC)

type turnScript func(call int, req ai.TurnRequest) (*ai.GeneratedTurn, error)

type fakeGenerator struct {
	mu       sync.Mutex
	script   turnScript
	requests []ai.TurnRequest
	inflight int
	maxSeen  int
	// started, when set, receives once per call before the script runs.
	started chan struct{}
	// block makes every call wait for ctx cancellation.
	block bool
}

func (f *fakeGenerator) NextTurn(ctx context.Context, req ai.TurnRequest) (*ai.GeneratedTurn, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	// Yield so overlapping calls would be observable.
	time.Sleep(time.Millisecond)
	return f.script(call, req)
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGenerator) request(i int) ai.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func closingFrom(n int) turnScript {
	return func(call int, _ ai.TurnRequest) (*ai.GeneratedTurn, error) {
		return &ai.GeneratedTurn{
			Question:         fmt.Sprintf("Question %d?", call),
			SuggestedReplies: []string{"Pass"},
			IsClosing:        call >= n,
		}, nil
	}
}

func failing(err error) turnScript {
	return func(int, ai.TurnRequest) (*ai.GeneratedTurn, error) {
		return nil, err
	}
}

type fakeScorer struct {
	mu     sync.Mutex
	calls  int
	report *interview.ScoreReport
	err    error
	seen   []interview.Transcript
}

func (f *fakeScorer) Score(_ context.Context, _ interview.CandidateProfile, transcript interview.Transcript) (*interview.ScoreReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, transcript)
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &interview.ScoreReport{Score: 7, Feedback: "Good grasp of Go."}, nil
}

func (f *fakeScorer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExtractor struct {
	profile interview.CandidateProfile
	err     error
}

func (f fakeExtractor) Extract(context.Context, string) (interview.CandidateProfile, error) {
	return f.profile, f.err
}

// brokenStore accepts Create and fails every later write.
type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) AppendTurn(context.Context, string, interview.Turn) error {
	return errors.New("disk full")
}

func (brokenStore) Finalize(context.Context, string, interview.Outcome) error {
	return errors.New("disk full")
}

type harness struct {
	registry  *Registry
	generator *fakeGenerator
	scorer    *fakeScorer
	store     store.Store
	sleeps    *[]time.Duration
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InactivityTimeout = 0
	cfg.Retention = 0
	cfg.RetryDelay = 10 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, cfg Config, script turnScript) *harness {
	t.Helper()
	return newHarnessWith(t, cfg, &fakeGenerator{script: script}, &fakeScorer{}, store.NewMemoryStore())
}

func newHarnessWith(t *testing.T, cfg Config, gen *fakeGenerator, scorer *fakeScorer, st store.Store) *harness {
	t.Helper()

	sleeps := stubSleep(t)

	var seq int
	var seqMu sync.Mutex
	registry, err := NewRegistry(cfg, Deps{
		Extractor: fakeExtractor{profile: interview.CandidateProfile{Name: "A", Skills: []string{"Go"}}},
		Generator: gen,
		Scorer:    scorer,
		Store:     st,
		Now:       func() time.Time { return testClock },
		NewID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("session-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	return &harness{registry: registry, generator: gen, scorer: scorer, store: st, sleeps: sleeps}
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()

	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)
	original := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = original })
	return &sleeps
}

// started creates a session for profile {name: A, skills: [Go]} and starts it.
func (h *harness) started(t *testing.T) string {
	t.Helper()

	snap, err := h.registry.Create(context.Background(), interview.CandidateProfile{Name: "A", Skills: []string{"Go"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.registry.Start(context.Background(), snap.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	return snap.ID
}

func (h *harness) submit(t *testing.T, id, text string) Reply {
	t.Helper()

	reply, err := h.registry.SubmitUtterance(context.Background(), id, text)
	if err != nil {
		t.Fatalf("submit %q: %v", text, err)
	}
	return reply
}

func (h *harness) snapshot(t *testing.T, id string) Snapshot {
	t.Helper()

	snap, err := h.registry.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func (h *harness) report(t *testing.T, id, kind string, times int) {
	t.Helper()

	for i := 0; i < times; i++ {
		if _, err := h.registry.ReportProctoringEvent(context.Background(), id, kind); err != nil {
			t.Fatalf("report %s: %v", kind, err)
		}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func countSpeaker(turns []interview.Turn, speaker interview.Speaker) int {
	n := 0
	for _, turn := range turns {
		if turn.Speaker == speaker {
			n++
		}
	}
	return n
}

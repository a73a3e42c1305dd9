package proctoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spigell/screener/internal/interview"
)

func TestMonitorDisqualifiesOnThirdStrike(t *testing.T) {
	t.Parallel()

	m := New(DefaultThreshold)
	m.Arm()

	at := time.Unix(100, 0)
	for i := 1; i <= 2; i++ {
		v, err := m.RecordKind(interview.EventFocusLost, at)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Disqualified {
			t.Fatalf("disqualified after %d strikes", i)
		}
		if v.Strikes != i {
			t.Fatalf("expected %d strikes, got %d", i, v.Strikes)
		}
	}

	if v := m.Status(); v.Disqualified || v.Remaining() != 1 {
		t.Fatalf("two events must leave the session active: %+v", v)
	}

	v, err := m.RecordKind(interview.EventFullscreenExit, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Disqualified || v.Strikes != 3 {
		t.Fatalf("expected disqualification at 3 strikes, got %+v", v)
	}
}

func TestMonitorCountsDuplicateEvents(t *testing.T) {
	t.Parallel()

	m := New(5)
	m.Arm()

	event := interview.ProctoringEvent{Kind: interview.EventFocusLost, Timestamp: time.Unix(42, 0)}
	if _, err := m.Record(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := m.Record(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.Strikes != 2 {
		t.Fatalf("duplicate events must count twice, got %d", v.Strikes)
	}
	if len(m.Events()) != 2 {
		t.Fatalf("expected both events in the log")
	}
}

func TestMonitorIgnoresEventsWhenNotArmed(t *testing.T) {
	t.Parallel()

	m := New(DefaultThreshold)

	v, err := m.RecordKind(interview.EventFocusLost, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Counted || v.Strikes != 0 {
		t.Fatalf("event before arming must be ignored: %+v", v)
	}

	m.Arm()
	m.Seal()
	m.Arm()

	v, _ = m.RecordKind(interview.EventFocusLost, time.Now())
	if v.Counted || v.Strikes != 0 {
		t.Fatalf("event after sealing must be ignored: %+v", v)
	}
}

func TestMonitorStrikesNeverDecrease(t *testing.T) {
	t.Parallel()

	m := New(DefaultThreshold)
	m.Arm()

	prev := 0
	for i := 0; i < 6; i++ {
		v, _ := m.RecordKind(interview.EventFocusLost, time.Now())
		if v.Strikes < prev {
			t.Fatalf("strike count decreased from %d to %d", prev, v.Strikes)
		}
		prev = v.Strikes
	}

	if prev != DefaultThreshold {
		t.Fatalf("strikes must stop at the threshold once disqualified, got %d", prev)
	}
}

func TestMonitorRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	m := New(DefaultThreshold)
	m.Arm()

	_, err := m.RecordKind("copy_paste", time.Now())
	if !errors.Is(err, interview.ErrUnknownEventKind) {
		t.Fatalf("expected ErrUnknownEventKind, got %v", err)
	}
	if m.Status().Strikes != 0 {
		t.Fatalf("unknown events must not count")
	}
}

func TestMonitorConcurrentEvents(t *testing.T) {
	t.Parallel()

	m := New(100)
	m.Arm()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.RecordKind(interview.EventFocusLost, time.Now())
		}()
	}
	wg.Wait()

	if got := m.Status().Strikes; got != 50 {
		t.Fatalf("expected 50 strikes, got %d", got)
	}
}

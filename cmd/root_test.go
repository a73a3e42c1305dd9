package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/store"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults(viper.GetViper())
	t.Cleanup(func() {
		viper.Reset()
		setDefaults(viper.GetViper())
	})
}

func TestGetConfigDefaults(t *testing.T) {
	resetViper(t)

	config, err := getConfig()
	if err != nil {
		t.Fatalf("getConfig: %v", err)
	}

	if config.Interview.MinQuestions != 4 || config.Interview.MaxQuestions != 6 {
		t.Fatalf("unexpected question bounds: %+v", config.Interview)
	}
	if config.Interview.MaxStrikes != 3 {
		t.Fatalf("expected threshold 3, got %d", config.Interview.MaxStrikes)
	}
	if config.Interview.RetryDelay != time.Second || config.Interview.InactivityTimeout != 5*time.Minute {
		t.Fatalf("unexpected durations: %+v", config.Interview)
	}
	if config.Server.Listen != ":8080" || config.Store.Driver != store.DriverMemory {
		t.Fatalf("unexpected server/store config: %+v %+v", config.Server, config.Store)
	}
	if config.AI == nil || config.AI.Gemini == nil || config.AI.Gemini.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected ai config: %+v", config.AI)
	}
	if config.Metrics.Enabled() {
		t.Fatal("metrics must be disabled without an endpoint")
	}
}

func TestGetConfigFromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "screener.yaml")
	content := `
interview:
  min-questions: 2
  max-questions: 3
  retry-delay: 250ms
  score-disqualified: true
proctoring:
  threshold: 5
store:
  driver: sqlite
  path: /tmp/screener.db
ai:
  persona:
    interviewer: Maya
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	config, err := getConfig()
	if err != nil {
		t.Fatalf("getConfig: %v", err)
	}

	if config.Interview.MinQuestions != 2 || config.Interview.MaxQuestions != 3 {
		t.Fatalf("unexpected question bounds: %+v", config.Interview)
	}
	if config.Interview.RetryDelay != 250*time.Millisecond || !config.Interview.ScoreDisqualified {
		t.Fatalf("unexpected interview config: %+v", config.Interview)
	}
	if config.Interview.MaxStrikes != 5 {
		t.Fatalf("expected threshold 5, got %d", config.Interview.MaxStrikes)
	}
	if config.Store.Driver != store.DriverSQLite {
		t.Fatalf("unexpected store driver %q", config.Store.Driver)
	}
	if persona := newPersona(config); persona.Interviewer != "Maya" || persona.MaxStrikes != 5 {
		t.Fatalf("unexpected persona %+v", persona)
	}
}

func TestGetConfigRejectsInvalidBounds(t *testing.T) {
	resetViper(t)
	viper.Set("interview.min-questions", 5)
	viper.Set("interview.max-questions", 2)

	if _, err := getConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPrintRecords(t *testing.T) {
	at := time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC)
	records := []store.Record{
		{
			ID:        "s-1",
			Profile:   interview.CandidateProfile{Name: "Ana"},
			Status:    interview.StatusCompleted,
			CreatedAt: at,
			Outcome: &interview.Outcome{
				Status: interview.StatusCompleted,
				Report: &interview.ScoreReport{Score: 8, Feedback: "ok"},
				Reason: "closing turn",
			},
		},
		{
			ID:        "s-2",
			Profile:   interview.CandidateProfile{Name: "Bo"},
			Status:    interview.StatusActive,
			CreatedAt: at,
		},
	}

	var out bytes.Buffer
	if shown := printRecords(&out, records, false); shown != 1 {
		t.Fatalf("expected one finished record, got %d", shown)
	}
	if !strings.Contains(out.String(), "score=8") || strings.Contains(out.String(), "s-2") {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}

	out.Reset()
	if shown := printRecords(&out, records, true); shown != 2 {
		t.Fatalf("expected both records, got %d", shown)
	}
	if !strings.Contains(out.String(), "s-2") || !strings.Contains(out.String(), "score=-") {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}
}

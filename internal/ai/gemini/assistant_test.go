package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/interview"
)

type stubGenerator struct {
	responses []string
	errs      []error
	requests  []Request
}

func (s *stubGenerator) Generate(ctx context.Context, req Request) (string, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("unexpected call")
}

const sampleResume = `Priya Raman - priya@example.com
Backend engineer with six years of Go and Kubernetes experience building payment systems.`

func TestExtractorParsesProfile(t *testing.T) {
	gen := &stubGenerator{responses: []string{"```json\n" + `{
		"identifiable": true,
		"name": " Priya Raman ",
		"email": "priya@example.com",
		"summary": "Backend engineer.",
		"skills": ["Go", "Kubernetes", "Go", " "],
		"projects": [{"title": "Ledger", "description": "Double-entry ledger service"}]
	}` + "\n```"}}

	profile, err := NewExtractor(gen, zap.NewNop()).Extract(context.Background(), sampleResume)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.Name != "Priya Raman" {
		t.Fatalf("unexpected name %q", profile.Name)
	}
	if len(profile.Skills) != 2 || profile.Skills[0] != "Go" || profile.Skills[1] != "Kubernetes" {
		t.Fatalf("unexpected skills %v", profile.Skills)
	}
	if len(profile.Projects) != 1 || profile.Projects[0].Title != "Ledger" {
		t.Fatalf("unexpected projects %+v", profile.Projects)
	}
	if gen.requests[0].Schema != profileSchema {
		t.Fatalf("expected profile schema on request")
	}
	if !strings.Contains(gen.requests[0].Message, "payment systems") {
		t.Fatalf("expected resume text in prompt")
	}
}

func TestExtractorAcceptsLooseShapes(t *testing.T) {
	gen := &stubGenerator{responses: []string{`Here you go: {
		"name": "Sam Lee",
		"skills": "Go, Rust ,  SQL",
		"projects": "• Crawler: distributed web crawler\n• Billing - invoice pipeline\n• N/A"
	}`}}

	profile, err := NewExtractor(gen, nil).Extract(context.Background(), sampleResume)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Join(profile.Skills, "|") != "Go|Rust|SQL" {
		t.Fatalf("unexpected skills %v", profile.Skills)
	}
	want := []interview.Project{
		{Title: "Crawler", Description: "distributed web crawler"},
		{Title: "Billing", Description: "invoice pipeline"},
	}
	if len(profile.Projects) != len(want) {
		t.Fatalf("unexpected projects %+v", profile.Projects)
	}
	for i := range want {
		if profile.Projects[i] != want[i] {
			t.Fatalf("project %d: expected %+v, got %+v", i, want[i], profile.Projects[i])
		}
	}
}

func TestExtractorUnidentifiableResumeYieldsEmptyProfile(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"identifiable": false, "name": "", "skills": [], "projects": []}`}}

	profile, err := NewExtractor(gen, nil).Extract(context.Background(), strings.Repeat("lorem ipsum ", 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !profile.IsEmpty() || profile.Skills == nil || profile.Projects == nil {
		t.Fatalf("expected empty normalized profile, got %+v", profile)
	}
	if profile.DisplayName() != "Candidate" {
		t.Fatalf("expected generic display name, got %q", profile.DisplayName())
	}
}

func TestExtractorErrors(t *testing.T) {
	tests := []struct {
		name   string
		resume string
		gen    *stubGenerator
		calls  int
	}{
		{name: "empty text", resume: "   ", gen: &stubGenerator{}, calls: 0},
		{name: "too short", resume: "Go developer", gen: &stubGenerator{}, calls: 0},
		{name: "unparseable", resume: sampleResume, gen: &stubGenerator{responses: []string{"no json here"}}, calls: 1},
		{name: "service failure", resume: sampleResume, gen: &stubGenerator{errs: []error{interview.NewTransientError(errors.New("boom"))}}, calls: 1},
		{name: "nothing extracted", resume: sampleResume, gen: &stubGenerator{responses: []string{`{"name": ""}`}}, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor(tt.gen, nil).Extract(context.Background(), tt.resume)

			var extractionErr *interview.ExtractionError
			if !errors.As(err, &extractionErr) {
				t.Fatalf("expected extraction error, got %v", err)
			}
			if len(tt.gen.requests) != tt.calls {
				t.Fatalf("expected %d generator calls, got %d", tt.calls, len(tt.gen.requests))
			}
		})
	}
}

func TestExtractorTruncatesLongResume(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"name": "Long Resume"}`}}
	resume := strings.Repeat("é", maxResumeRunes+500)

	if _, err := NewExtractor(gen, nil).Extract(context.Background(), resume); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Count(gen.requests[0].Message, "é"); got != maxResumeRunes {
		t.Fatalf("expected %d resume runes in prompt, got %d", maxResumeRunes, got)
	}
}

func sampleTranscript() interview.Transcript {
	var transcript interview.Transcript
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	transcript.Append(interview.Turn{Speaker: interview.SpeakerCandidate, Text: "I am ready.", Timestamp: now})
	transcript.Append(interview.Turn{Speaker: interview.SpeakerInterviewer, Text: "Tell me about Ledger.", Timestamp: now})
	transcript.Append(interview.Turn{Speaker: interview.SpeakerCandidate, Text: "It balanced accounts.", Timestamp: now})
	return transcript
}

func TestInterviewerNextTurn(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{
		"question": "How did you **test** the ledger?",
		"suggested_replies": ["Pass", "pass", "Could you repeat the question?", "", "One", "Two", "Three"],
		"is_closing": false
	}`}}

	persona := Persona{Interviewer: "Ada", Company: "Acme", Role: "Go Engineer", MaxStrikes: 3}
	interviewer := NewInterviewer(gen, persona, zap.NewNop())

	turn, err := interviewer.NextTurn(context.Background(), ai.TurnRequest{
		Profile:       interview.CandidateProfile{Name: "Priya"},
		Transcript:    sampleTranscript(),
		Strikes:       1,
		QuestionIndex: 1,
		MinQuestions:  4,
		MaxQuestions:  6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if turn.Question != "How did you test the ledger?" {
		t.Fatalf("unexpected question %q", turn.Question)
	}
	if len(turn.SuggestedReplies) != maxSuggestedReplies {
		t.Fatalf("expected %d replies, got %v", maxSuggestedReplies, turn.SuggestedReplies)
	}
	if turn.SuggestedReplies[0] != "Pass" || turn.SuggestedReplies[1] != "Could you repeat the question?" {
		t.Fatalf("expected deduplicated replies, got %v", turn.SuggestedReplies)
	}
	if turn.IsClosing {
		t.Fatalf("did not expect closing turn")
	}

	req := gen.requests[0]
	for _, want := range []string{"Ada", "Acme", "Go Engineer", "Priya", "1 proctoring warning"} {
		if !strings.Contains(req.System, want) {
			t.Fatalf("expected system prompt to mention %q", want)
		}
	}
	if len(req.History) != 3 {
		t.Fatalf("expected full transcript as history, got %d", len(req.History))
	}
	if req.History[0].Role != genai.RoleUser || req.History[1].Role != genai.RoleModel {
		t.Fatalf("unexpected history roles %q, %q", req.History[0].Role, req.History[1].Role)
	}
	if strings.Contains(req.Message, "final turn") {
		t.Fatalf("did not expect closing instruction")
	}
}

func TestInterviewerForceClosingInstruction(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"question": "Thanks, that is all.", "suggested_replies": [], "is_closing": true}`}}

	turn, err := NewInterviewer(gen, Persona{}, nil).NextTurn(context.Background(), ai.TurnRequest{
		Transcript:    sampleTranscript(),
		QuestionIndex: 5,
		MinQuestions:  4,
		MaxQuestions:  6,
		ForceClosing:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !turn.IsClosing {
		t.Fatalf("expected closing turn")
	}
	if turn.SuggestedReplies == nil {
		t.Fatalf("expected non-nil replies")
	}
	if !strings.Contains(gen.requests[0].Message, "final turn") {
		t.Fatalf("expected closing instruction in message, got %q", gen.requests[0].Message)
	}
	if !strings.Contains(gen.requests[0].System, defaultInterviewer) {
		t.Fatalf("expected default persona in system prompt")
	}
}

func TestInterviewerMalformedOutput(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":       "Sure! Here is the next question.",
		"empty question": `{"question": "  ", "suggested_replies": ["Pass"], "is_closing": false}`,
	} {
		t.Run(name, func(t *testing.T) {
			gen := &stubGenerator{responses: []string{raw}}
			_, err := NewInterviewer(gen, Persona{}, nil).NextTurn(context.Background(), ai.TurnRequest{MaxQuestions: 6})

			var genErr *interview.GenerationError
			if !errors.As(err, &genErr) || genErr.Kind != interview.FailureMalformed {
				t.Fatalf("expected malformed failure, got %v", err)
			}
		})
	}
}

func TestInterviewerPassesThroughGenerationErrors(t *testing.T) {
	quota := &interview.GenerationError{Kind: interview.FailureQuota, RetryAfter: time.Second, Err: errors.New("429")}
	gen := &stubGenerator{errs: []error{quota}}

	_, err := NewInterviewer(gen, Persona{}, nil).NextTurn(context.Background(), ai.TurnRequest{})
	if !errors.Is(err, quota) {
		t.Fatalf("expected quota error to pass through, got %v", err)
	}
}

func TestScorerScoresTranscript(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"score": "8", "feedback": "Clear and **confident** answers."}`}}

	report, err := NewScorer(gen, Persona{Role: "Go Engineer"}, 4, zap.NewNop()).
		Score(context.Background(), interview.CandidateProfile{Name: "Priya"}, sampleTranscript())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Score != 8 || report.Feedback != "Clear and confident answers." || report.Unavailable {
		t.Fatalf("unexpected report %+v", report)
	}

	msg := gen.requests[0].Message
	if !strings.Contains(msg, "2. Interviewer: Tell me about Ledger.") {
		t.Fatalf("expected rendered transcript in prompt, got %q", msg)
	}
	if !strings.Contains(msg, "ended early") {
		t.Fatalf("expected partial note for a short interview")
	}
}

func TestScorerRejectsOutOfRangeScore(t *testing.T) {
	for _, raw := range []string{`{"score": 0, "feedback": "x"}`, `{"score": 11, "feedback": "x"}`, `{"feedback": "no score"}`} {
		gen := &stubGenerator{responses: []string{raw}}
		_, err := NewScorer(gen, Persona{}, 0, nil).Score(context.Background(), interview.CandidateProfile{}, sampleTranscript())

		var genErr *interview.GenerationError
		if !errors.As(err, &genErr) || genErr.Kind != interview.FailureMalformed {
			t.Fatalf("%s: expected malformed failure, got %v", raw, err)
		}
	}
}

func TestCleanReplies(t *testing.T) {
	got := cleanReplies([]string{"  Pass ", "PASS", "Repeat   please", ""}, 0)
	if strings.Join(got, "|") != "Pass|Repeat please" {
		t.Fatalf("unexpected replies %v", got)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"prefix {\"a\":1} suffix": `{"a":1}`,
		"no object":               "",
	}
	for input, want := range tests {
		if got := extractJSON(input); got != want {
			t.Fatalf("extractJSON(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRenderKeepsPlaceholderLikeValues(t *testing.T) {
	persona := Persona{Interviewer: "Alex", Company: "Acme", Role: "Backend Engineer", MaxStrikes: 3}
	profile := interview.CandidateProfile{Name: "{{ROLE}}", Skills: []string{"{{COMPANY}}"}}

	first := buildInterviewerPrompt(persona, profile, 0, 3, 10)
	if !strings.Contains(first, "interviewing {{ROLE}} for the Backend Engineer role") {
		t.Fatalf("candidate name was substituted:\n%s", first)
	}
	if !strings.Contains(first, `"{{COMPANY}}"`) {
		t.Fatalf("profile json was substituted:\n%s", first)
	}

	// Map iteration order changes between calls, the output must not.
	for i := 0; i < 50; i++ {
		if got := buildInterviewerPrompt(persona, profile, 0, 3, 10); got != first {
			t.Fatalf("render %d differs:\n%s\nwant:\n%s", i, got, first)
		}
	}
}

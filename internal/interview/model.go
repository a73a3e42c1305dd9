package interview

import (
	"slices"
	"strings"
	"time"
)

type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// Project is a single entry of the candidate's project history.
type Project struct {
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
}

// CandidateProfile is derived once per session from the resume text.
// Treat it as a value: Skills and Projects are copied on every accessor that hands them out.
type CandidateProfile struct {
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Skills   []string  `json:"skills"`
	Projects []Project `json:"projects"`
}

// Normalize trims fields and replaces nil sequences with empty ones.
func (p CandidateProfile) Normalize() CandidateProfile {
	out := CandidateProfile{
		Name:     strings.TrimSpace(p.Name),
		Email:    strings.TrimSpace(p.Email),
		Summary:  strings.TrimSpace(p.Summary),
		Skills:   make([]string, 0, len(p.Skills)),
		Projects: make([]Project, 0, len(p.Projects)),
	}

	for _, skill := range p.Skills {
		skill = strings.TrimSpace(skill)
		if skill == "" || slices.Contains(out.Skills, skill) {
			continue
		}
		out.Skills = append(out.Skills, skill)
	}

	for _, project := range p.Projects {
		project.Title = strings.TrimSpace(project.Title)
		project.Description = strings.TrimSpace(project.Description)
		if project.Title == "" && project.Description == "" {
			continue
		}
		out.Projects = append(out.Projects, project)
	}

	return out
}

// Clone returns a deep copy of the profile.
func (p CandidateProfile) Clone() CandidateProfile {
	out := p
	out.Skills = slices.Clone(p.Skills)
	out.Projects = slices.Clone(p.Projects)
	if out.Skills == nil {
		out.Skills = []string{}
	}
	if out.Projects == nil {
		out.Projects = []Project{}
	}
	return out
}

// IsEmpty reports whether extraction found nothing identifiable.
func (p CandidateProfile) IsEmpty() bool {
	return p.Name == "" && p.Email == "" && p.Summary == "" && len(p.Skills) == 0 && len(p.Projects) == 0
}

// DisplayName returns a name suitable for greetings.
func (p CandidateProfile) DisplayName() string {
	if p.Name == "" {
		return "Candidate"
	}
	return p.Name
}

type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an append-only sequence of turns.
// The zero value is an empty transcript ready to use.
type Transcript struct {
	turns []Turn
}

func NewTranscript(turns ...Turn) Transcript {
	return Transcript{turns: slices.Clone(turns)}
}

func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

func (t Transcript) Len() int {
	return len(t.turns)
}

// Turns returns a copy of the recorded turns.
func (t Transcript) Turns() []Turn {
	out := slices.Clone(t.turns)
	if out == nil {
		out = []Turn{}
	}
	return out
}

// Count returns the number of turns by the given speaker.
func (t Transcript) Count(speaker Speaker) int {
	n := 0
	for _, turn := range t.turns {
		if turn.Speaker == speaker {
			n++
		}
	}
	return n
}

// Last returns the most recent turn, if any.
func (t Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

type EventKind string

const (
	EventFullscreenExit EventKind = "fullscreen_exit"
	EventFocusLost      EventKind = "focus_lost"
)

// ParseEventKind accepts both the snake_case wire names and their upper-case forms.
func ParseEventKind(raw string) (EventKind, error) {
	switch EventKind(strings.ToLower(strings.TrimSpace(raw))) {
	case EventFullscreenExit:
		return EventFullscreenExit, nil
	case EventFocusLost:
		return EventFocusLost, nil
	default:
		return "", ErrUnknownEventKind
	}
}

type ProctoringEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoreReport is the final evaluation of a session.
// Unavailable marks the sentinel written when scoring could not be obtained.
type ScoreReport struct {
	Score       int    `json:"score"`
	Feedback    string `json:"feedback"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

const (
	MinScore = 1
	MaxScore = 10

	scoringUnavailableFeedback = "scoring unavailable"
)

// ScoringUnavailable returns the sentinel report used when the scorer keeps failing.
func ScoringUnavailable() *ScoreReport {
	return &ScoreReport{Feedback: scoringUnavailableFeedback, Unavailable: true}
}

// Outcome is persisted when a session reaches a terminal status.
type Outcome struct {
	Status        Status       `json:"status"`
	Strikes       int          `json:"strikes"`
	QuestionCount int          `json:"question_count"`
	Report        *ScoreReport `json:"report,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	// Events is the ordered proctoring log counted during the session.
	Events  []ProctoringEvent `json:"events,omitempty"`
	EndedAt time.Time         `json:"ended_at"`
}

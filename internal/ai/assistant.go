package ai

import (
	"context"

	"github.com/spigell/screener/internal/interview"
)

// TurnRequest carries the full context for one generated interviewer turn.
// Implementations must not keep state between calls.
type TurnRequest struct {
	Profile       interview.CandidateProfile
	Transcript    interview.Transcript
	Strikes       int
	QuestionIndex int
	MinQuestions  int
	MaxQuestions  int
	// ForceClosing asks for a closing remark instead of another question.
	ForceClosing bool
}

type GeneratedTurn struct {
	Question         string
	SuggestedReplies []string
	IsClosing        bool
	Raw              string
}

// ProfileExtractor derives a candidate profile from decoded resume text.
type ProfileExtractor interface {
	Extract(ctx context.Context, resumeText string) (interview.CandidateProfile, error)
}

// QuestionGenerator produces the next interviewer turn.
type QuestionGenerator interface {
	NextTurn(ctx context.Context, req TurnRequest) (*GeneratedTurn, error)
}

// Scorer evaluates a finished transcript.
type Scorer interface {
	Score(ctx context.Context, profile interview.CandidateProfile, transcript interview.Transcript) (*interview.ScoreReport, error)
}

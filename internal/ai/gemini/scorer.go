package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/interview"
)

const scoringSystem = "You are a strict but fair technical hiring evaluator. Output JSON only."

var scoreSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score":    {Type: genai.TypeInteger},
		"feedback": {Type: genai.TypeString},
	},
	Required: []string{"score", "feedback"},
}

type scoredTranscript struct {
	Score    int    `mapstructure:"score"`
	Feedback string `mapstructure:"feedback"`
}

// Scorer evaluates a transcript using the same generator as the interviewer.
type Scorer struct {
	generator    generator
	persona      Persona
	minQuestions int
	logger       *zap.Logger
}

func NewScorer(generator generator, persona Persona, minQuestions int, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{generator: generator, persona: persona.withDefaults(), minQuestions: minQuestions, logger: logger}
}

var _ ai.Scorer = (*Scorer)(nil)

func (s *Scorer) Score(ctx context.Context, profile interview.CandidateProfile, transcript interview.Transcript) (*interview.ScoreReport, error) {
	partial := transcript.Count(interview.SpeakerInterviewer) < s.minQuestions

	raw, err := s.generator.Generate(ctx, Request{
		System:  scoringSystem,
		Message: buildScorePrompt(s.persona, profile, transcript, partial),
		Schema:  scoreSchema,
	})
	if err != nil {
		return nil, err
	}

	var parsed scoredTranscript
	if err := decodeResponse(raw, &parsed); err != nil {
		return nil, interview.NewMalformedError(err)
	}

	if parsed.Score < interview.MinScore || parsed.Score > interview.MaxScore {
		return nil, interview.NewMalformedError(fmt.Errorf("score %d is outside [%d,%d]", parsed.Score, interview.MinScore, interview.MaxScore))
	}

	feedback := stripMarkdown(parsed.Feedback)
	if strings.TrimSpace(feedback) == "" {
		feedback = "No feedback provided."
	}

	s.logger.Debug("transcript scored",
		zap.Int("score", parsed.Score),
		zap.Bool("partial", partial),
	)

	return &interview.ScoreReport{Score: parsed.Score, Feedback: feedback}, nil
}

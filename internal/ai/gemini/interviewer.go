package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/interview"
)

const maxSuggestedReplies = 4

var turnSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"question":          {Type: genai.TypeString},
		"suggested_replies": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"is_closing":        {Type: genai.TypeBoolean},
	},
	Required: []string{"question", "suggested_replies", "is_closing"},
}

type generatedTurn struct {
	Question         string   `mapstructure:"question"`
	SuggestedReplies []string `mapstructure:"suggested_replies"`
	IsClosing        bool     `mapstructure:"is_closing"`
}

// Interviewer is the question generation adapter backed by Gemini.
type Interviewer struct {
	generator generator
	persona   Persona
	logger    *zap.Logger
}

func NewInterviewer(generator generator, persona Persona, logger *zap.Logger) *Interviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interviewer{generator: generator, persona: persona.withDefaults(), logger: logger}
}

var _ ai.QuestionGenerator = (*Interviewer)(nil)

func (i *Interviewer) NextTurn(ctx context.Context, req ai.TurnRequest) (*ai.GeneratedTurn, error) {
	raw, err := i.generator.Generate(ctx, Request{
		System:  buildInterviewerPrompt(i.persona, req.Profile, req.Strikes, req.MinQuestions, req.MaxQuestions),
		History: history(req.Transcript),
		Message: turnInstruction(req),
		Schema:  turnSchema,
	})
	if err != nil {
		return nil, err
	}

	var parsed generatedTurn
	if err := decodeResponse(raw, &parsed); err != nil {
		return nil, interview.NewMalformedError(err)
	}

	question := stripMarkdown(parsed.Question)
	if question == "" {
		return nil, interview.NewMalformedError(errors.New("generated turn has no question text"))
	}

	return &ai.GeneratedTurn{
		Question:         question,
		SuggestedReplies: cleanReplies(parsed.SuggestedReplies, maxSuggestedReplies),
		IsClosing:        parsed.IsClosing,
		Raw:              raw,
	}, nil
}

// history replays the transcript as chat contents: the interviewer is the model.
func history(transcript interview.Transcript) []*genai.Content {
	turns := transcript.Turns()
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role genai.Role = genai.RoleUser
		if turn.Speaker == interview.SpeakerInterviewer {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return contents
}

func turnInstruction(req ai.TurnRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Questions asked so far: %d.\n", req.QuestionIndex)
	if last, ok := req.Transcript.Last(); !ok || last.Speaker == interview.SpeakerInterviewer {
		b.WriteString("The candidate has not said anything new; continue with the interview flow.\n")
	}
	if req.ForceClosing {
		b.WriteString("This is the final turn: thank the candidate and close the interview. Set is_closing to true.\n")
	} else {
		b.WriteString("Write the next interviewer turn.\n")
	}
	return b.String()
}

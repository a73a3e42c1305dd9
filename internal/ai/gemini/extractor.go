package gemini

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/screener/internal/interview"
)

const (
	minResumeLength  = 50
	maxResumeRunes   = 4000
	extractionSystem = "You extract structured candidate data from resumes. Output JSON only."
)

type generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

var profileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"identifiable": {Type: genai.TypeBoolean},
		"name":         {Type: genai.TypeString},
		"email":        {Type: genai.TypeString},
		"summary":      {Type: genai.TypeString},
		"skills":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"projects": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":       {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
				},
				Required: []string{"title"},
			},
		},
	},
	Required: []string{"identifiable", "name", "skills", "projects"},
}

type extractedProfile struct {
	// Identifiable is a pointer so a missing key is not mistaken for "false".
	Identifiable *bool               `mapstructure:"identifiable"`
	Name         string              `mapstructure:"name"`
	Email        string              `mapstructure:"email"`
	Summary      string              `mapstructure:"summary"`
	Skills       []string            `mapstructure:"skills"`
	Projects     []interview.Project `mapstructure:"projects"`
}

// Extractor derives a CandidateProfile from resume text.
type Extractor struct {
	generator generator
	logger    *zap.Logger
}

func NewExtractor(generator generator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generator: generator, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, resumeText string) (interview.CandidateProfile, error) {
	text := strings.TrimSpace(resumeText)
	if utf8.RuneCountInString(text) < minResumeLength {
		return interview.CandidateProfile{}, &interview.ExtractionError{Reason: "resume is empty or unreadable"}
	}

	if runes := []rune(text); len(runes) > maxResumeRunes {
		text = string(runes[:maxResumeRunes])
	}

	raw, err := e.generator.Generate(ctx, Request{
		System:  extractionSystem,
		Message: buildExtractPrompt(text),
		Schema:  profileSchema,
	})
	if err != nil {
		return interview.CandidateProfile{}, &interview.ExtractionError{Reason: "extraction call failed", Err: err}
	}

	var parsed extractedProfile
	if err := decodeResponse(raw, &parsed); err != nil {
		return interview.CandidateProfile{}, &interview.ExtractionError{Reason: "unparseable extraction result", Err: err}
	}

	if parsed.Identifiable != nil && !*parsed.Identifiable {
		e.logger.Info("resume has no identifiable content")
		return interview.CandidateProfile{}.Normalize(), nil
	}

	profile := interview.CandidateProfile{
		Name:     parsed.Name,
		Email:    parsed.Email,
		Summary:  parsed.Summary,
		Skills:   parsed.Skills,
		Projects: parsed.Projects,
	}.Normalize()

	if profile.IsEmpty() {
		return interview.CandidateProfile{}, &interview.ExtractionError{
			Reason: "unparseable extraction result",
			Err:    errors.New("extraction returned no profile fields"),
		}
	}

	e.logger.Info("resume parsed",
		zap.String("candidate", profile.Name),
		zap.Int("skills", len(profile.Skills)),
		zap.Int("projects", len(profile.Projects)),
	)

	return profile, nil
}

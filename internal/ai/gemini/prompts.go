package gemini

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	_ "embed"

	"github.com/spigell/screener/internal/interview"
)

//go:embed prompts/interviewer.md
var interviewerTemplate string

//go:embed prompts/extract.md
var extractTemplate string

//go:embed prompts/score.md
var scoreTemplate string

const (
	defaultInterviewer = "Divya"
	defaultCompany     = "Canary Digital.ai"
	defaultRole        = "AI Engineer"
)

// Persona describes who is interviewing and for which role.
type Persona struct {
	Interviewer string
	Company     string
	Role        string
	MaxStrikes  int
}

func (p Persona) withDefaults() Persona {
	if strings.TrimSpace(p.Interviewer) == "" {
		p.Interviewer = defaultInterviewer
	}
	if strings.TrimSpace(p.Company) == "" {
		p.Company = defaultCompany
	}
	if strings.TrimSpace(p.Role) == "" {
		p.Role = defaultRole
	}
	if p.MaxStrikes <= 0 {
		p.MaxStrikes = 3
	}
	return p
}

// render fills every placeholder in one pass, so substituted values are never rescanned.
func render(template string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		pairs = append(pairs, "{{"+key+"}}", values[key])
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

func profileJSON(profile interview.CandidateProfile) string {
	payload, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", profile)
	}
	return string(payload)
}

func renderTranscript(transcript interview.Transcript) string {
	var b strings.Builder
	for i, turn := range transcript.Turns() {
		role := "Candidate"
		if turn.Speaker == interview.SpeakerInterviewer {
			role = "Interviewer"
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, role, turn.Text)
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return strings.TrimSpace(b.String())
}

func buildInterviewerPrompt(p Persona, profile interview.CandidateProfile, strikes, minQuestions, maxQuestions int) string {
	return render(interviewerTemplate, map[string]string{
		"INTERVIEWER":    p.Interviewer,
		"COMPANY":        p.Company,
		"ROLE":           p.Role,
		"CANDIDATE_NAME": profile.DisplayName(),
		"PROFILE_JSON":   profileJSON(profile),
		"MIN_QUESTIONS":  strconv.Itoa(minQuestions),
		"MAX_QUESTIONS":  strconv.Itoa(maxQuestions),
		"STRIKES":        strconv.Itoa(strikes),
		"MAX_STRIKES":    strconv.Itoa(p.MaxStrikes),
	})
}

func buildExtractPrompt(resumeText string) string {
	return render(extractTemplate, map[string]string{"RESUME_TEXT": resumeText})
}

func buildScorePrompt(p Persona, profile interview.CandidateProfile, transcript interview.Transcript, partial bool) string {
	note := ""
	if partial {
		note = "- The interview ended early; score only what was covered.\n"
	}
	return render(scoreTemplate, map[string]string{
		"ROLE":         p.Role,
		"COMPANY":      p.Company,
		"PROFILE_JSON": profileJSON(profile),
		"TRANSCRIPT":   renderTranscript(transcript),
		"PARTIAL_NOTE": note,
	})
}

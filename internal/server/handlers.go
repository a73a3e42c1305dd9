package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/proctoring"
	"github.com/spigell/screener/internal/session"
)

const (
	maxResumeBytes    = 1 << 20
	maxUtteranceBytes = 64 << 10
)

type uploadResponse struct {
	SessionID string                     `json:"session_id"`
	Candidate interview.CandidateProfile `json:"candidate"`
}

type replyResponse struct {
	Question         string   `json:"question,omitempty"`
	SuggestedReplies []string `json:"suggested_replies"`
	Status           string   `json:"status"`
	Strikes          int      `json:"strikes"`
	QuestionIndex    int      `json:"question_index"`
	Score            *int     `json:"score,omitempty"`
	Feedback         string   `json:"feedback,omitempty"`
	ScoreUnavailable bool     `json:"score_unavailable,omitempty"`
	Notice           string   `json:"notice,omitempty"`
}

type proctoringResponse struct {
	Strikes      int    `json:"strikes"`
	Remaining    int    `json:"remaining"`
	Disqualified bool   `json:"disqualified"`
	Counted      bool   `json:"counted"`
	Status       string `json:"status"`
}

type snapshotResponse struct {
	ID            string                     `json:"id"`
	Status        string                     `json:"status"`
	Strikes       int                        `json:"strikes"`
	QuestionIndex int                        `json:"question_index"`
	Candidate     interview.CandidateProfile `json:"candidate"`
	Transcript    []interview.Turn           `json:"transcript"`
	Outcome       *interview.Outcome         `json:"outcome,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
}

func newReplyResponse(r session.Reply) replyResponse {
	out := replyResponse{
		Question:         r.Question,
		SuggestedReplies: r.SuggestedReplies,
		Status:           r.Status.String(),
		Strikes:          r.Strikes,
		QuestionIndex:    r.QuestionIndex,
		Notice:           r.Notice,
	}
	if out.SuggestedReplies == nil {
		out.SuggestedReplies = []string{}
	}
	if r.Report != nil {
		out.Feedback = r.Report.Feedback
		out.ScoreUnavailable = r.Report.Unavailable
		if !r.Report.Unavailable {
			score := r.Report.Score
			out.Score = &score
		}
	}
	return out
}

func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	text, err := readResume(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.registry.Admit(r.Context(), text)
	if err != nil {
		s.writeError(w, s.requestErr(r.Context(), err))
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{SessionID: snap.ID, Candidate: snap.Profile})
}

// readResume accepts decoded text only; binary documents are converted upstream.
func readResume(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType := "text/plain"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return "", fmt.Errorf("%w: invalid content type %q", errBadRequest, ct)
		}
		mediaType = parsed
	}

	body := http.MaxBytesReader(w, r.Body, maxResumeBytes)

	switch mediaType {
	case "text/plain":
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("%w: read body: %v", errBadRequest, err)
		}
		return string(data), nil
	case "application/json":
		var req struct {
			ResumeText string `json:"resume_text"`
		}
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return "", fmt.Errorf("%w: decode body: %v", errBadRequest, err)
		}
		return req.ResumeText, nil
	default:
		return "", fmt.Errorf("%w: %s; send extracted resume text", errUnsupportedMedia, mediaType)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	reply, err := s.registry.Start(r.Context(), chi.URLParam(r, "id"))
	s.writeReply(w, r, reply, err)
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUtteranceBytes)).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	reply, err := s.registry.SubmitUtterance(r.Context(), chi.URLParam(r, "id"), req.Text)
	s.writeReply(w, r, reply, err)
}

func (s *Server) handleProctoring(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUtteranceBytes)).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	id := chi.URLParam(r, "id")
	verdict, err := s.registry.ReportProctoringEvent(r.Context(), id, req.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status, err := s.settleIfDisqualified(r.Context(), id, verdict)
	if err != nil {
		s.writeError(w, s.requestErr(r.Context(), err))
		return
	}

	writeJSON(w, http.StatusOK, proctoringResponse{
		Strikes:      verdict.Strikes,
		Remaining:    verdict.Remaining(),
		Disqualified: verdict.Disqualified,
		Counted:      verdict.Counted,
		Status:       status.String(),
	})
}

// settleIfDisqualified finalizes right away instead of waiting for the next utterance.
func (s *Server) settleIfDisqualified(ctx context.Context, id string, verdict proctoring.Verdict) (interview.Status, error) {
	if verdict.Disqualified {
		reply, err := s.registry.Settle(ctx, id)
		if err != nil {
			return "", err
		}
		return reply.Status, nil
	}

	snap, err := s.registry.Snapshot(id)
	if err != nil {
		return "", err
	}
	return snap.Status, nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	reply, err := s.registry.Cancel(r.Context(), chi.URLParam(r, "id"))
	s.writeReply(w, r, reply, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		ID:            snap.ID,
		Status:        snap.Status.String(),
		Strikes:       snap.Strikes,
		QuestionIndex: snap.QuestionIndex,
		Candidate:     snap.Profile,
		Transcript:    snap.Transcript,
		Outcome:       snap.Outcome,
		CreatedAt:     snap.CreatedAt,
	})
}

func (s *Server) writeReply(w http.ResponseWriter, r *http.Request, reply session.Reply, err error) {
	if err != nil {
		s.writeError(w, s.requestErr(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, newReplyResponse(reply))
}

func (s *Server) requestErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", errCancelled, err)
	}
	return err
}


package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/screener/internal/interview"
	"github.com/spigell/screener/internal/utils"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Request is a single stateless exchange: a fresh chat is created for every call.
type Request struct {
	System  string
	History []*genai.Content
	Message string
	// Schema, when set, switches the response to JSON constrained by it.
	Schema *genai.Schema
}

// Generator wraps the Google GenAI chat API. It performs exactly one attempt
// per call; retry policy belongs to the caller.
type Generator struct {
	chats       chatCreator
	model       string
	temperature *float32
	logger      *zap.Logger
	maxLogLen   int
}

type Option func(*Generator)

func WithTemperature(t float32) Option {
	return func(g *Generator) { g.temperature = &t }
}

func WithMaxLogLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxLogLen = n
		}
	}
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, logger *zap.Logger, opts ...Option) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(genaiChats{chats: client.Chats}, model, logger, opts...), nil
}

func newGenerator(chats chatCreator, model string, logger *zap.Logger, opts ...Option) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Generator{
		chats:     chats,
		model:     model,
		logger:    logger,
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateContent sends a plain-text message under the given system instruction.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	return g.Generate(ctx, Request{System: system, Message: message})
}

// Generate runs the request and returns the concatenated text of the first response.
// Failures are returned as *interview.GenerationError unless the context was cancelled.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{Temperature: g.temperature}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema
	}

	g.logger.Debug("gemini chat request",
		zap.String("model", g.model),
		zap.Int("history_length", len(req.History)),
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, g.maxLogLen)),
	)

	chat, err := g.chats.Create(ctx, g.model, config, req.History)
	if err != nil {
		return "", g.classify(ctx, fmt.Errorf("create chat: %w", err))
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", g.classify(ctx, fmt.Errorf("send message: %w", err))
	}

	output := responseText(resp)
	if output == "" {
		return "", interview.NewMalformedError(errors.New("gemini api returned empty response"))
	}

	g.logger.Debug("gemini chat response",
		zap.String("model", g.model),
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first candidate with content is used.
		if builder.Len() > 0 {
			break
		}
	}

	return strings.TrimSpace(builder.String())
}

func (g *Generator) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	genErr := classifyError(err)
	g.logger.Debug("gemini call failed",
		zap.String("model", g.model),
		zap.String("failure", string(genErr.Kind)),
		zap.Duration("retry_after", genErr.RetryAfter),
		zap.Error(err),
	)
	return genErr
}

func classifyError(err error) *interview.GenerationError {
	apiErr, ok := asAPIError(err)
	if !ok {
		return interview.NewTransientError(err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED"):
		return &interview.GenerationError{
			Kind:       interview.FailureQuota,
			RetryAfter: retryDelay(apiErr),
			Err:        err,
		}
	case apiErr.Code >= http.StatusInternalServerError, apiErr.Code == http.StatusRequestTimeout:
		return interview.NewTransientError(err)
	default:
		return &interview.GenerationError{Kind: interview.FailureRejected, Err: err}
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var pointer *genai.APIError
	if errors.As(err, &pointer) && pointer != nil {
		return *pointer, true
	}
	return genai.APIError{}, false
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|second|seconds)?`)

// retryDelay looks for a google.rpc.RetryInfo detail first and falls back to the message text.
func retryDelay(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
			return d
		}
	}

	match := retryAfterPattern.FindStringSubmatch(apiErr.Message)
	if match == nil {
		return 0
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}

	if strings.EqualFold(match[2], "ms") {
		return time.Duration(value * float64(time.Millisecond))
	}
	return time.Duration(value * float64(time.Second))
}

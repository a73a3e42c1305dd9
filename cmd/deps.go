package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai/gemini"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/metrics"
	"github.com/spigell/screener/internal/secrets"
	"github.com/spigell/screener/internal/session"
	"github.com/spigell/screener/internal/store"
)

// services bundles what serve and rehearse share. Close releases it in reverse order.
type services struct {
	registry *session.Registry
	store    store.Store
	closers  []func(context.Context) error
}

func (r *services) Close(ctx context.Context) error {
	var errs []error
	if r.registry != nil {
		if err := r.registry.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing sessions: %w", err))
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newServices(ctx context.Context, config *Config, log *zap.Logger) (*services, error) {
	rt := &services{}

	recorder, err := newRecorder(ctx, config.Metrics, rt, log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, config.Store)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("opening %s store: %w", config.Store.Driver, err)
	}
	rt.store = st
	rt.closers = append(rt.closers, func(context.Context) error { return st.Close() })

	generator, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	persona := newPersona(config)
	aiLogger := logger.WithCommonFields(log, "gemini", generator.Model())

	registry, err := session.NewRegistry(config.Interview, session.Deps{
		Extractor: gemini.NewExtractor(generator, aiLogger),
		Generator: gemini.NewInterviewer(generator, persona, aiLogger),
		Scorer:    gemini.NewScorer(generator, persona, config.Interview.MinQuestions, aiLogger),
		Store:     st,
		Logger:    log,
		Metrics:   recorder,
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.registry = registry

	log.Info("services ready",
		zap.String("store", config.Store.Driver),
		zap.Bool("metrics", config.Metrics.Enabled()),
		zap.Int("min_questions", config.Interview.MinQuestions),
		zap.Int("max_questions", config.Interview.MaxQuestions),
		zap.Int("max_strikes", config.Interview.MaxStrikes),
	)
	return rt, nil
}

func newRecorder(ctx context.Context, cfg metrics.Config, rt *services, log *zap.Logger) (*metrics.Recorder, error) {
	var provider metric.MeterProvider
	if cfg.Enabled() {
		sdkProvider, err := metrics.NewProvider(ctx, cfg, version)
		if err != nil {
			return nil, fmt.Errorf("setting up metrics: %w", err)
		}
		rt.closers = append(rt.closers, sdkProvider.Shutdown)
		provider = sdkProvider
		log.Info("exporting metrics", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	recorder, err := metrics.NewRecorder(provider)
	if err != nil {
		return nil, fmt.Errorf("creating metric instruments: %w", err)
	}
	return recorder, nil
}

func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Generator, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithCommonFields(log, "gemini", cfg.Gemini.Model)

	return gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, genLogger,
		gemini.WithTemperature(cfg.Gemini.Temperature),
		gemini.WithMaxLogLength(cfg.Gemini.MaxLogLength),
	)
}

func newPersona(config *Config) gemini.Persona {
	persona := gemini.Persona{MaxStrikes: config.Interview.MaxStrikes}
	if config.AI != nil && config.AI.Persona != nil {
		persona.Interviewer = config.AI.Persona.Interviewer
		persona.Company = config.AI.Persona.Company
		persona.Role = config.AI.Persona.Role
	}
	return persona
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/config"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
	aiAdapters "dialogue-orchestrator/internal/infra/adapters/ai"
	"dialogue-orchestrator/internal/usecase"
)

// buildAI picks providers from the configured keys. In dev mode with no key
// the canned noop adapter is used.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	byProvider := map[string]adapter.AIServiceAdapter{}
	defaultProvider := ""

	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter("openai", cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = oa
		defaultProvider = "openai"
	}
	if cfg.AI.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = gm
		if defaultProvider == "" || providerForModel(cfg.AI.DefaultModel) == "gemini" {
			defaultProvider = "gemini"
		}
	}
	if len(byProvider) == 0 {
		if !cfg.Runtime.Dev {
			return nil, fmt.Errorf("no AI provider configured: set ai.openai_key or ai.gemini_key")
		}
		logger.Warn().Msg("no AI provider configured, using canned noop replies")
		return aiAdapters.NewNoopAIAdapter(200 * time.Millisecond), nil
	}

	routes := map[string]string{}
	for _, m := range []string{cfg.AI.DefaultModel, cfg.AI.EvaluatorModel} {
		if m == "" {
			continue
		}
		if p := providerForModel(m); byProvider[p] != nil {
			routes[m] = p
		}
	}
	logger.Info().Str("default_provider", defaultProvider).Str("model", cfg.AI.DefaultModel).Msg("AI adapter ready")
	multi := aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider, routes)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}

func providerForModel(name string) string {
	if strings.HasPrefix(strings.ToLower(name), "gemini") {
		return "gemini"
	}
	return "openai"
}

func generatorConfig(cfg *config.Config) aiAdapters.GeneratorConfig {
	return aiAdapters.GeneratorConfig{
		Model:              cfg.AI.DefaultModel,
		EvaluatorModel:     cfg.AI.EvaluatorModel,
		MaxOutputTokens:    cfg.AI.MaxOutputTokens,
		HistoryTokenBudget: cfg.AI.HistoryTokenBudget,
	}
}

func sessionOptions(cfg *config.Config) usecase.SessionOptions {
	o := cfg.Orchestrator
	return usecase.SessionOptions{
		Trigger: usecase.EvaluationTrigger{
			IndividualTurns: o.IndividualTurnThreshold,
			GroupRounds:     o.GroupRoundThreshold,
		},
		DefaultEvaluator: model.Participant{
			ID:      o.DefaultEvaluator.ID,
			Name:    o.DefaultEvaluator.Name,
			Persona: o.DefaultEvaluator.Persona,
		},
		LockTTL:          o.LockTTL,
		LockWait:         o.LockWait,
		SubscriberBuffer: o.SubscriberBuffer,
		Dev:              cfg.Runtime.Dev,
	}
}

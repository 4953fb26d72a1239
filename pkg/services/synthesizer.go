package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/llm"
	"github.com/cubelens/cubelens-engine/pkg/logging"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/prompts"
	"github.com/cubelens/cubelens-engine/pkg/repair"
	"github.com/cubelens/cubelens-engine/pkg/retry"
)

const (
	synthesisTemperature = 0.1
	// Regeneration from scratch runs hotter so the model does not
	// reproduce the failed document verbatim.
	regenerateTemperature = 0.5
)

// SynthesisError means the generator could not produce a parseable query
// document at all. It is distinct from validation failure: there is no
// document to repair.
type SynthesisError struct {
	Message string
	Cause   error
}

func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("synthesis failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("synthesis failed: %s", e.Message)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// SynthesisResult is a parsed generation outcome.
type SynthesisResult struct {
	Document          models.DSLDocument
	RewrittenQuestion *string
}

// synthesisResponse is the JSON shape the generator is asked to return.
type synthesisResponse struct {
	Query             models.DSLDocument `json:"query"`
	RewrittenQuestion *string            `json:"rewritten_question"`
}

// QuerySynthesizer turns natural-language questions into candidate DSL
// documents via the generation collaborator. Output is never trusted: it is
// parsed strictly here and validated downstream.
type QuerySynthesizer struct {
	llmClient llm.LLMClient
	registry  *ModelRegistry
	retryCfg  *retry.Config
	logger    *zap.Logger
}

// NewQuerySynthesizer creates a synthesizer using the given generation
// client.
func NewQuerySynthesizer(llmClient llm.LLMClient, registry *ModelRegistry, logger *zap.Logger) *QuerySynthesizer {
	return &QuerySynthesizer{
		llmClient: llmClient,
		registry:  registry,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.Named("synthesizer"),
	}
}

// Synthesize generates a candidate document for the question. A non-nil
// hint means this is a repair cycle; the hint's guidance is embedded in the
// prompt. Transient LLM failures are retried; anything else surfaces as a
// SynthesisError.
func (s *QuerySynthesizer) Synthesize(
	ctx context.Context,
	tenantID uuid.UUID,
	question string,
	exemplars []prompts.ExemplarContext,
	hint *repair.Hint,
) (*SynthesisResult, error) {
	cubeContexts, err := s.registry.PromptContexts(ctx)
	if err != nil {
		return nil, err
	}
	if len(cubeContexts) == 0 {
		return nil, &SynthesisError{Message: "tenant has no active cubes"}
	}

	prompt := prompts.BuildQuerySynthesisPrompt(question, cubeContexts, exemplars, hint)
	system := prompts.BuildQuerySynthesisSystemMessage()

	temperature := synthesisTemperature
	if hint != nil && hint.Strategy == repair.StrategyRegenerateFromScratch {
		temperature = regenerateTemperature
	}

	result, err := retry.DoWithResult(ctx, s.retryCfg, func() (*llm.GenerateResponseResult, error) {
		return s.llmClient.GenerateResponse(ctx, prompt, system, temperature)
	})
	if err != nil {
		return nil, &SynthesisError{Message: "generation request failed", Cause: err}
	}

	parsed, err := llm.ParseJSONResponse[synthesisResponse](result.Content)
	if err != nil {
		s.logger.Warn("generator returned unparseable response",
			zap.String("question", logging.TruncateQuestion(question)),
			zap.Int("response_length", len(result.Content)),
			zap.Error(err))
		return nil, &SynthesisError{Message: "unparseable generation output", Cause: err}
	}

	if parsed.Query.Cube == "" {
		return nil, &SynthesisError{Message: "generated document has no target cube"}
	}

	s.logger.Debug("synthesized candidate document",
		zap.String("cube", parsed.Query.Cube),
		zap.Int("measures", len(parsed.Query.Measures)),
		zap.Int("dimensions", len(parsed.Query.Dimensions)),
		zap.Bool("repair", hint != nil),
		zap.Int("total_tokens", result.TotalTokens))

	return &SynthesisResult{
		Document:          parsed.Query,
		RewrittenQuestion: parsed.RewrittenQuestion,
	}, nil
}

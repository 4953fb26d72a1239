package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/adapters/executor"
	"github.com/cubelens/cubelens-engine/pkg/audit"
	"github.com/cubelens/cubelens-engine/pkg/config"
	"github.com/cubelens/cubelens-engine/pkg/dsl"
	"github.com/cubelens/cubelens-engine/pkg/logging"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/prompts"
	"github.com/cubelens/cubelens-engine/pkg/repair"
)

// ExhaustedError means the repair loop ran out of options: either the
// cycle budget was spent or the failure category has no applicable
// strategy. It carries the taxonomy category and the attempt trace, never
// raw executor error text; that stays in the attempt log and server logs.
type ExhaustedError struct {
	Category repair.ErrorCategory
	Pattern  string
	Repairs  int
	Trace    []*models.RepairAttempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("query could not be repaired after %d cycle(s): %s", e.Repairs, e.Category)
}

// Answer is the terminal success of one question.
type Answer struct {
	RecordID          uuid.UUID
	Question          string
	RewrittenQuestion *string
	Document          models.DSLDocument
	SQL               string
	Columns           []string
	Rows              []map[string]any
	RowCount          int
	ExecutionTimeMs   int
	Complexity        models.Complexity
	Repaired          bool
	RepairCycles      int
	ExemplarsDegraded bool
	Trace             []*models.RepairAttempt
}

// AnswerService drives the synthesis pipeline: retrieve exemplars,
// generate, validate, execute, and on failure classify, pick a strategy,
// and regenerate, up to the configured cycle budget.
type AnswerService struct {
	registry    *ModelRegistry
	retrieval   *ExemplarRetrievalService
	synthesizer *QuerySynthesizer
	validator   *dsl.Validator
	exec        executor.Executor
	classifier  *repair.Classifier
	selector    *repair.StrategySelector
	recorder    *OutcomeRecorder
	auditor     *audit.SecurityAuditor
	cfg         *config.PipelineConfig
	logger      *zap.Logger
}

// NewAnswerService wires the pipeline together.
func NewAnswerService(
	registry *ModelRegistry,
	retrieval *ExemplarRetrievalService,
	synthesizer *QuerySynthesizer,
	validator *dsl.Validator,
	exec executor.Executor,
	classifier *repair.Classifier,
	selector *repair.StrategySelector,
	recorder *OutcomeRecorder,
	cfg *config.PipelineConfig,
	logger *zap.Logger,
) *AnswerService {
	return &AnswerService{
		registry:    registry,
		retrieval:   retrieval,
		synthesizer: synthesizer,
		validator:   validator,
		exec:        exec,
		classifier:  classifier,
		selector:    selector,
		recorder:    recorder,
		auditor:     audit.NewSecurityAuditor(logger),
		cfg:         cfg,
		logger:      logger.Named("answer"),
	}
}

// attemptOutcome is one generate/validate/execute pass. The document is
// present whenever generation produced one, even if it later failed.
type attemptOutcome struct {
	doc       models.DSLDocument
	rewritten *string
	compiled  *dsl.CompiledQuery
	result    *executor.Result
}

func (o *attemptOutcome) succeeded() bool {
	return o != nil && o.result != nil
}

// AnswerQuery answers a natural-language question, repairing failed
// attempts up to the configured budget. The caller must have established a
// tenant scope in ctx.
func (s *AnswerService) AnswerQuery(ctx context.Context, tenantID uuid.UUID, question string) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestDeadline)
	defer cancel()

	records, exemplarsDegraded := s.retrieval.Retrieve(ctx, tenantID, question, "", s.cfg.ExemplarCount)
	exemplars := s.retrieval.PromptExemplars(records)

	var (
		repairs        int
		hint           *repair.Hint
		pending        *models.RepairAttempt
		lastClassified repair.Classified
		lastDoc        models.DSLDocument
		trace          []*models.RepairAttempt
	)

	// conclude persists a finished repair cycle and appends it to the
	// request's attempt trace.
	conclude := func(p *models.RepairAttempt) {
		trace = append(trace, p)
		s.recordPending(ctx, p)
	}
	fail := func(p *models.RepairAttempt) {
		if p == nil {
			return
		}
		p.Success = false
		conclude(p)
	}

	for {
		if err := ctx.Err(); err != nil {
			fail(pending)
			return nil, err
		}

		outcome, failure, err := s.attempt(ctx, tenantID, question, exemplars, hint)

		if err != nil {
			if ctx.Err() != nil {
				fail(pending)
				return nil, ctx.Err()
			}
			var synErr *SynthesisError
			if errors.As(err, &synErr) && pending != nil {
				// A repair cycle produced nothing parseable. Record the
				// failed cycle and retry against the same failure.
				fail(pending)
				pending = nil
				failure = &lastClassified
			} else {
				// First-pass synthesis failure is terminal: there is no
				// document to repair.
				fail(pending)
				return nil, err
			}
		}

		if outcome.succeeded() {
			if pending != nil {
				pending.Success = true
				pending.RepairedDSL = &outcome.doc
				pending.ExecutionTimeMs = int(outcome.result.Elapsed.Milliseconds())
				conclude(pending)
			}
			return s.finishSuccess(ctx, question, outcome, repairs, exemplarsDegraded, trace), nil
		}

		lastClassified = *failure
		if outcome != nil {
			lastDoc = outcome.doc
		}

		if pending != nil {
			// The previous repair's document failed again.
			if outcome != nil {
				pending.RepairedDSL = &outcome.doc
			}
			fail(pending)
			pending = nil
		}

		if repairs >= s.cfg.MaxRepairAttempts {
			s.logger.Warn("repair budget exhausted",
				zap.String("question", logging.TruncateQuestion(question)),
				zap.String("category", string(failure.Category)),
				zap.String("error", failure.Message),
				zap.Int("repairs", repairs))
			s.auditExhaustion(tenantID, question, *failure, repairs)
			return nil, &ExhaustedError{Category: failure.Category, Pattern: failure.Pattern, Repairs: repairs, Trace: trace}
		}

		strategy, ok := s.selector.Select(ctx, tenantID, *failure)
		if !ok {
			s.auditExhaustion(tenantID, question, *failure, repairs)
			return nil, &ExhaustedError{Category: failure.Category, Pattern: failure.Pattern, Repairs: repairs, Trace: trace}
		}

		catalog, err := s.registry.Catalog(ctx)
		if err != nil {
			return nil, err
		}

		failedDoc := lastDoc
		h := repair.BuildHint(strategy, *failure, failedDoc, catalog)
		hint = &h
		repairs++

		// Bias the few-shot exemplars toward the cube the failed attempt
		// targeted, when retrieval can serve that.
		if failedDoc.Cube != "" {
			if biased, degraded := s.retrieval.Retrieve(ctx, tenantID, question, failedDoc.Cube, s.cfg.ExemplarCount); !degraded {
				exemplars = s.retrieval.PromptExemplars(biased)
			}
		}

		pending = &models.RepairAttempt{
			OriginalDSL:   failedDoc,
			ErrorMessage:  failure.Message,
			ErrorPattern:  failure.Pattern,
			ErrorCategory: string(failure.Category),
			Strategy:      string(strategy),
			Details:       h.Details,
			CubeName:      failedDoc.Cube,
			QueryContext:  question,
		}

		s.logger.Info("starting repair cycle",
			zap.Int("cycle", repairs),
			zap.String("category", string(failure.Category)),
			zap.String("strategy", string(strategy)))
	}
}

// attempt runs one generate/validate/execute pass under the attempt
// timeout. A classified failure is returned for validation and execution
// errors; err is reserved for failures with no document to repair.
func (s *AnswerService) attempt(
	ctx context.Context,
	tenantID uuid.UUID,
	question string,
	exemplars []prompts.ExemplarContext,
	hint *repair.Hint,
) (*attemptOutcome, *repair.Classified, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	synthesized, err := s.synthesizer.Synthesize(actx, tenantID, question, exemplars, hint)
	if err != nil {
		return nil, nil, err
	}

	outcome := &attemptOutcome{
		doc:       synthesized.Document,
		rewritten: synthesized.RewrittenQuestion,
	}

	compiled, verr := s.validator.Validate(actx, tenantID, synthesized.Document)
	if verr != nil {
		if verr.Injection != nil {
			s.auditor.LogInjectionAttempt(tenantID, audit.InjectionDetails{
				Member:      verr.Injection.Member,
				Value:       verr.Injection.Value,
				Fingerprint: verr.Injection.Fingerprint,
				Question:    question,
			})
		}
		classified := s.classifier.ClassifyValidation(verr.Category, verr.Message)
		return outcome, &classified, nil
	}
	outcome.compiled = compiled

	result, err := s.exec.Execute(actx, compiled)
	if err != nil {
		if ctx.Err() != nil {
			// The whole request is done, not just this attempt.
			return outcome, nil, ctx.Err()
		}
		classified := s.classifier.ClassifyExecution(err.Error())
		return outcome, &classified, nil
	}
	outcome.result = result

	return outcome, nil, nil
}

// finishSuccess records the successful outcome and assembles the answer.
// Recording is best-effort: the user already has their result.
func (s *AnswerService) finishSuccess(ctx context.Context, question string, outcome *attemptOutcome, repairs int, exemplarsDegraded bool, trace []*models.RepairAttempt) *Answer {
	record := &models.SuccessfulQueryRecord{
		OriginalQuestion:  question,
		RewrittenQuestion: outcome.rewritten,
		Document:          outcome.doc,
		CubeName:          outcome.compiled.CubeName,
		ExecutionTimeMs:   int(outcome.result.Elapsed.Milliseconds()),
		RowCount:          outcome.result.RowCount,
		Complexity:        dsl.ClassifyComplexity(outcome.doc),
	}

	// Persist even when the caller has already gone away.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.recorder.RecordSuccess(recordCtx, record); err != nil {
		s.logger.Error("failed to record successful query",
			zap.String("question", logging.TruncateQuestion(question)),
			zap.Error(err))
	}

	return &Answer{
		RecordID:          record.ID,
		Question:          question,
		RewrittenQuestion: outcome.rewritten,
		Document:          outcome.doc,
		SQL:               outcome.compiled.SQL,
		Columns:           outcome.result.Columns,
		Rows:              outcome.result.Rows,
		RowCount:          outcome.result.RowCount,
		ExecutionTimeMs:   int(outcome.result.Elapsed.Milliseconds()),
		Complexity:        record.Complexity,
		Repaired:          repairs > 0,
		RepairCycles:      repairs,
		ExemplarsDegraded: exemplarsDegraded,
		Trace:             trace,
	}
}

// recordPending writes a finalized repair attempt row. Uses a
// cancellation-immune context so in-flight rows survive client
// disconnects.
func (s *AnswerService) recordPending(ctx context.Context, pending *models.RepairAttempt) {
	if err := s.recorder.RecordRepairAttempt(context.WithoutCancel(ctx), pending); err != nil {
		s.logger.Error("failed to record repair attempt", zap.Error(err))
	}
}

func (s *AnswerService) auditExhaustion(tenantID uuid.UUID, question string, failure repair.Classified, repairs int) {
	s.auditor.LogRepairExhausted(tenantID, audit.ExhaustionDetails{
		Category: string(failure.Category),
		Pattern:  failure.Pattern,
		Cycles:   repairs,
		Question: logging.TruncateQuestion(question),
	})
}

package services

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/logging"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/prompts"
	"github.com/cubelens/cubelens-engine/pkg/repositories"
	"github.com/cubelens/cubelens-engine/pkg/vector"
)

// ExemplarRetrievalService finds previously successful question/query pairs
// similar to a new question. Retrieval is best-effort: any failure degrades
// to zero exemplars rather than failing the request.
type ExemplarRetrievalService struct {
	embedder       vector.Embedder
	index          vector.Index
	queries        repositories.SuccessfulQueryRepository
	embeddingModel string
	logger         *zap.Logger
}

// NewExemplarRetrievalService creates the retrieval service.
func NewExemplarRetrievalService(
	embedder vector.Embedder,
	index vector.Index,
	queries repositories.SuccessfulQueryRepository,
	embeddingModel string,
	logger *zap.Logger,
) *ExemplarRetrievalService {
	return &ExemplarRetrievalService{
		embedder:       embedder,
		index:          index,
		queries:        queries,
		embeddingModel: embeddingModel,
		logger:         logger.Named("exemplar-retrieval"),
	}
}

// Retrieve returns up to k exemplars for the question, most relevant first.
// A non-empty cubeHint narrows results to exemplars targeting that cube.
// The degraded flag reports that synthesis will run without few-shot
// grounding, whether the index was unreachable or simply had no hits.
func (s *ExemplarRetrievalService) Retrieve(ctx context.Context, tenantID uuid.UUID, question string, cubeHint string, k int) ([]*models.SuccessfulQueryRecord, bool) {
	if k <= 0 {
		return nil, false
	}

	embedding, err := s.embedder.CreateEmbedding(ctx, question, s.embeddingModel)
	if err != nil {
		s.logger.Warn("embedding failed, synthesizing without exemplars",
			zap.String("question", logging.TruncateQuestion(question)),
			zap.Error(err))
		return nil, true
	}

	matches, err := s.index.Query(ctx, tenantID, embedding, k)
	if err != nil {
		s.logger.Warn("vector lookup failed, synthesizing without exemplars",
			zap.Error(err))
		return nil, true
	}
	if len(matches) == 0 {
		return nil, true
	}

	refs := make([]uuid.UUID, len(matches))
	scores := make(map[uuid.UUID]float64, len(matches))
	for i, m := range matches {
		refs[i] = m.ID
		scores[m.ID] = m.Score
	}

	records, err := s.queries.GetByVectorRefs(ctx, refs)
	if err != nil {
		s.logger.Warn("exemplar load failed, synthesizing without exemplars",
			zap.Error(err))
		return nil, true
	}

	if cubeHint != "" {
		narrowed := records[:0]
		for _, record := range records {
			if record.CubeName == cubeHint {
				narrowed = append(narrowed, record)
			}
		}
		records = narrowed
	}
	if len(records) == 0 {
		return nil, true
	}

	// Similarity first, then rating, then recency.
	sort.Slice(records, func(i, j int) bool {
		si, sj := scores[records[i].VectorRef], scores[records[j].VectorRef]
		if si != sj {
			return si > sj
		}
		ri, rj := ratingOrZero(records[i]), ratingOrZero(records[j])
		if ri != rj {
			return ri > rj
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if len(records) > k {
		records = records[:k]
	}
	return records, false
}

// PromptExemplars renders records as few-shot examples. Records whose
// document fails to serialize are dropped.
func (s *ExemplarRetrievalService) PromptExemplars(records []*models.SuccessfulQueryRecord) []prompts.ExemplarContext {
	exemplars := make([]prompts.ExemplarContext, 0, len(records))
	for _, record := range records {
		encoded, err := json.Marshal(record.Document)
		if err != nil {
			s.logger.Warn("failed to serialize exemplar document", zap.String("record_id", record.ID.String()))
			continue
		}
		question := record.OriginalQuestion
		if record.RewrittenQuestion != nil && *record.RewrittenQuestion != "" {
			question = *record.RewrittenQuestion
		}
		exemplars = append(exemplars, prompts.ExemplarContext{
			Question: question,
			DSL:      string(encoded),
		})
	}
	return exemplars
}

func ratingOrZero(record *models.SuccessfulQueryRecord) int {
	if record.UserRating != nil {
		return *record.UserRating
	}
	return 0
}

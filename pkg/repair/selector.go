package repair

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/models"
)

// StatsProvider exposes the per-(strategy, pattern) view recomputed from the
// append-only attempt log. Staleness is acceptable: the view is read-mostly
// and advisory.
type StatsProvider interface {
	StrategyStats(ctx context.Context, tenantID uuid.UUID, errorPattern string) ([]models.StrategyStat, error)
}

// StrategySelector picks a repair strategy for a classified failure,
// preferring historically successful strategies for the same error pattern.
type StrategySelector struct {
	stats  StatsProvider
	logger *zap.Logger
}

// NewStrategySelector creates a selector backed by the given stats provider.
func NewStrategySelector(stats StatsProvider, logger *zap.Logger) *StrategySelector {
	return &StrategySelector{
		stats:  stats,
		logger: logger.Named("repair"),
	}
}

// Select returns the strategy to try for this tenant's error pattern, or
// false when no strategy applies to the category. History wins over the
// fixed defaults; a stats lookup failure degrades to the defaults rather
// than failing the repair loop.
func (s *StrategySelector) Select(ctx context.Context, tenantID uuid.UUID, classified Classified) (Strategy, bool) {
	stats, err := s.stats.StrategyStats(ctx, tenantID, classified.Pattern)
	if err != nil {
		s.logger.Warn("strategy stats lookup failed, using defaults",
			zap.String("error_pattern", classified.Pattern),
			zap.Error(err))
		stats = nil
	}

	var best *models.StrategyStat
	for i := range stats {
		st := &stats[i]
		if st.Attempts < 1 {
			continue
		}
		if best == nil ||
			st.SuccessRate > best.SuccessRate ||
			(st.SuccessRate == best.SuccessRate && st.Attempts > best.Attempts) {
			best = st
		}
	}

	if best != nil {
		s.logger.Debug("selected strategy from history",
			zap.String("strategy", best.Strategy),
			zap.String("error_pattern", classified.Pattern),
			zap.Float64("success_rate", best.SuccessRate))
		return Strategy(best.Strategy), true
	}

	return DefaultStrategy(classified.Category)
}

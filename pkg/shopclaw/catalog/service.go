package catalog

import (
	"context"
	"log/slog"
	"time"
)

// ProductSource loads a fresh snapshot of active products.
type ProductSource interface {
	FetchProducts(ctx context.Context) ([]Product, error)
}

// Service answers search requests against the live catalog. Every call pulls
// a new snapshot; nothing is cached between searches.
type Service struct {
	source ProductSource
	limit  int
	logger *slog.Logger
}

// NewService creates a catalog service. limit <= 0 uses DefaultLimit.
func NewService(source ProductSource, limit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{
		source: source,
		limit:  limit,
		logger: logger.With("component", "catalog"),
	}
}

// Search returns the rendered listing for query. Fetch failures are logged
// and turned into FetchErrorMessage.
func (s *Service) Search(ctx context.Context, query string) string {
	start := time.Now()
	products, err := s.source.FetchProducts(ctx)
	if err != nil {
		s.logger.Error("catalog fetch failed", "query", query, "error", err)
		return FetchErrorMessage
	}

	results := Match(query, products, s.limit)
	topScore := 0
	if len(results) > 0 {
		topScore = results[0].Score
	}
	s.logger.Debug("catalog search",
		"query", query,
		"snapshot", len(products),
		"matches", len(results),
		"top_score", topScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Render(query, results)
}

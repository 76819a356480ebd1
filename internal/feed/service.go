package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/riskdesk/internal/cache"
	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/metrics"
)

// ErrTransactionNotFound is returned by Lookup for unknown display IDs.
var ErrTransactionNotFound = errors.New("transaction not found")

// Feed sources reported on a Page.
const (
	SourceLive     = "live"
	SourceSnapshot = "snapshot"
	SourceEmpty    = "empty"
)

// Page is a presented feed.
type Page struct {
	Rows   []Row  `json:"rows"`
	Total  int    `json:"total"`
	Source string `json:"source"`
	Filter string `json:"filter,omitempty"`
}

// Service loads and presents the feed for an analyst.
type Service struct {
	scoring     domain.ScoringService
	cache       domain.Cache
	limit       int
	snapshotTTL time.Duration
}

// NewService creates a feed service.
func NewService(scoring domain.ScoringService, c domain.Cache, cfg domain.FeedConfig) *Service {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 50
	}
	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		scoring:     scoring,
		cache:       c,
		limit:       limit,
		snapshotTTL: ttl,
	}
}

// Load fetches and presents the feed. A fetch failure is not an error: the
// last snapshot for the analyst is served, or an empty feed if there is none.
// Only an invalid filter expression is reported.
func (s *Service) Load(ctx context.Context, analystID, filterExpr string) (*Page, error) {
	filter, err := CompileFilter(filterExpr)
	if err != nil {
		return nil, err
	}

	rows, source := s.fetch(ctx, analystID)
	total := len(rows)
	rows = filter.Apply(rows)

	return &Page{
		Rows:   rows,
		Total:  total,
		Source: source,
		Filter: filter.String(),
	}, nil
}

// Lookup resolves a display ID against the analyst's current snapshot,
// loading the feed first if there is none.
func (s *Service) Lookup(ctx context.Context, analystID, txID string) (*Row, error) {
	rows, found := s.snapshot(ctx, analystID)
	if !found {
		rows, _ = s.fetch(ctx, analystID)
	}

	for i := range rows {
		if rows[i].ID == txID {
			return &rows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
}

// ModelMetrics returns the scoring service's model-health fields, falling
// back to the last known values.
func (s *Service) ModelMetrics(ctx context.Context) domain.ModelMetrics {
	m, err := s.scoring.Metrics(ctx)
	if err == nil {
		if err := cache.SetJSON(ctx, s.cache, domain.SharedNamespace, domain.CacheKeyModelMetrics, m, s.snapshotTTL); err != nil {
			slog.Warn("failed to cache model metrics", "error", err)
		}
		return m
	}

	slog.Warn("model metrics fetch failed", "error", err)

	var cached domain.ModelMetrics
	if found, cerr := cache.GetJSON(ctx, s.cache, domain.SharedNamespace, domain.CacheKeyModelMetrics, &cached); cerr == nil && found {
		metrics.FeedFallbacksTotal.WithLabelValues("metrics_snapshot").Inc()
		return cached
	}

	metrics.FeedFallbacksTotal.WithLabelValues("metrics_empty").Inc()
	return domain.ModelMetrics{}
}

func (s *Service) fetch(ctx context.Context, analystID string) ([]Row, string) {
	txs, err := s.scoring.Transactions(ctx, s.limit)
	if err == nil {
		rows := Present(txs)
		if err := cache.SetJSON(ctx, s.cache, analystID, domain.CacheKeyFeed, transactions(rows), s.snapshotTTL); err != nil {
			slog.Warn("failed to cache feed snapshot",
				"analyst_id", analystID,
				"error", err,
			)
		}
		return rows, SourceLive
	}

	slog.Warn("feed fetch failed, falling back",
		"analyst_id", analystID,
		"error", err,
	)

	if rows, found := s.snapshot(ctx, analystID); found {
		metrics.FeedFallbacksTotal.WithLabelValues(SourceSnapshot).Inc()
		return rows, SourceSnapshot
	}

	metrics.FeedFallbacksTotal.WithLabelValues(SourceEmpty).Inc()
	return []Row{}, SourceEmpty
}

// snapshot reads the cached, already ordered feed.
func (s *Service) snapshot(ctx context.Context, analystID string) ([]Row, bool) {
	var txs []domain.ScoredTransaction
	found, err := cache.GetJSON(ctx, s.cache, analystID, domain.CacheKeyFeed, &txs)
	if err != nil {
		slog.Warn("failed to read feed snapshot",
			"analyst_id", analystID,
			"error", err,
		)
		return nil, false
	}
	if !found {
		return nil, false
	}

	rows := make([]Row, len(txs))
	for i, tx := range txs {
		rows[i] = newRow(tx)
	}
	return rows, true
}

package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/metrics"
)

// SyncDecision records which branch of the fetch policy served a Load
type SyncDecision string

const (
	DecisionNetwork    SyncDecision = "network"     // window open
	DecisionForced     SyncDecision = "forced"      // caller override
	DecisionColdStart  SyncDecision = "cold-start"  // window closed, nothing cached
	DecisionCache      SyncDecision = "cache"       // window closed, cache served
	DecisionStaleCache SyncDecision = "stale-cache" // network failed, cache served
)

// SyncResult is the outcome of CatalogSync.Load
type SyncResult struct {
	Products []domain.Product
	Decision SyncDecision
	Window   domain.WindowInfo
	// FetchErr is the network error behind a stale-cache result
	FetchErr error
}

// Fresh reports whether the products came from the network on this call
func (r SyncResult) Fresh() bool {
	return r.Decision == DecisionNetwork || r.Decision == DecisionForced || r.Decision == DecisionColdStart
}

// CatalogSync keeps the client-side replica current while respecting the
// fetch windows.
type CatalogSync struct {
	client     domain.StaffClient
	normalizer *Normalizer
	cache      *PersistentCache
	window     *FetchWindow
	clock      domain.Clock
	logger     *zap.Logger
}

// NewCatalogSync creates a sync service with dependencies
func NewCatalogSync(
	client domain.StaffClient,
	normalizer *Normalizer,
	cache *PersistentCache,
	window *FetchWindow,
	clock domain.Clock,
	logger *zap.Logger,
) *CatalogSync {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogSync{
		client:     client,
		normalizer: normalizer,
		cache:      cache,
		window:     window,
		clock:      clock,
		logger:     logger,
	}
}

// Load returns the catalog to use right now.
// Flow: window open or force -> network; closed with cache -> cache;
// closed without cache -> network anyway. A failed fetch falls back to the
// cache when there is one and is returned otherwise.
func (s *CatalogSync) Load(ctx context.Context, force bool) (SyncResult, error) {
	info := s.window.Info(s.clock.Now())
	cached := s.cache.Load(ctx)

	var decision SyncDecision
	switch {
	case force:
		decision = DecisionForced
	case info.IsAllowed:
		decision = DecisionNetwork
	case cached != nil:
		metrics.SyncDecisions.WithLabelValues(string(DecisionCache)).Inc()
		s.logger.Debug("Serving cached catalog outside fetch window",
			zap.Int("count", len(cached)),
			zap.Time("next_window", info.NextWindow))
		return SyncResult{Products: cached, Decision: DecisionCache, Window: info}, nil
	default:
		decision = DecisionColdStart
	}

	products, err := s.refresh(ctx, info)
	if err != nil {
		if cached != nil {
			metrics.SyncDecisions.WithLabelValues(string(DecisionStaleCache)).Inc()
			s.logger.Warn("Catalog fetch failed, serving stale cache",
				zap.String("decision", string(decision)),
				zap.Int("count", len(cached)),
				zap.Error(err))
			return SyncResult{Products: cached, Decision: DecisionStaleCache, Window: info, FetchErr: err}, nil
		}
		metrics.SyncDecisions.WithLabelValues("error").Inc()
		return SyncResult{Decision: decision, Window: info}, fmt.Errorf("catalog sync failed with no cache to fall back on: %w", err)
	}

	metrics.SyncDecisions.WithLabelValues(string(decision)).Inc()
	s.logger.Info("Catalog refreshed from network",
		zap.String("decision", string(decision)),
		zap.Int("count", len(products)))
	return SyncResult{Products: products, Decision: decision, Window: info}, nil
}

// refresh fetches, normalizes and caches the catalog. Empty results are
// never cached, so a bad upstream cannot wipe a good replica.
func (s *CatalogSync) refresh(ctx context.Context, info domain.WindowInfo) ([]domain.Product, error) {
	payload, err := s.client.FetchPayload(ctx)
	if err != nil {
		return nil, err
	}

	products, err := s.normalizer.Normalize(payload)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, domain.ErrEmptyCatalog
	}

	if err := s.cache.SaveWithWindow(ctx, products, domain.SourceStaffSync, &info); err != nil {
		s.logger.Warn("Failed to cache refreshed catalog", zap.Error(err))
	}
	return products, nil
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/notify"
	"github.com/lendmatch/backend/internal/usecase"
)

const (
	serviceName    = "lendmatch-backend"
	serviceVersion = "1.0.0"

	defaultHeartbeat = 30 * time.Second
	pullTimeout      = 60 * time.Second
	maxRequestBody   = 16 << 20
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     *usecase.CatalogStore
	engine    *usecase.RecommendationEngine
	events    *notify.Broadcaster
	logger    *zap.Logger
	heartbeat time.Duration

	pulling     atomic.Bool
	pendingPull atomic.Bool
	pulls       sync.WaitGroup
}

// NewHandler creates a new HTTP handler
func NewHandler(store *usecase.CatalogStore, engine *usecase.RecommendationEngine, events *notify.Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:     store,
		engine:    engine,
		events:    events,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
}

// SetHeartbeat changes the keep-alive interval of event streams
func (h *Handler) SetHeartbeat(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// Wait blocks until background pulls started by webhooks have finished
func (h *Handler) Wait() {
	h.pulls.Wait()
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	stats := h.store.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"version":   serviceVersion,
		"products":  stats.Count,
		"signature": stats.Signature,
	})
}

// GetSyncCatalog serves the whole catalog to client apps
func (h *Handler) GetSyncCatalog(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"products":    snap.Products,
		"lastUpdated": snap.Timestamp,
		"count":       len(snap.Products),
		"signature":   snap.Signature,
	})
}

// PostSyncCatalog replaces the catalog with the pushed product list
func (h *Handler) PostSyncCatalog(c *gin.Context) {
	records, err := decodeRecords(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.store.ReplaceAll(c.Request.Context(), records)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCatalog) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   "no valid products in request",
				"dropped": result.Dropped,
			})
			return
		}
		h.logger.Error("Catalog sync failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to sync products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"count":          result.Saved,
		"dropped":        result.Dropped,
		"countByCountry": result.CountByCountry,
		"signature":      result.Signature,
		"changed":        result.Changed,
		"message":        fmt.Sprintf("Synced %d products", result.Saved),
	})
}

// GetStats reports catalog statistics
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"stats":       h.store.GetStats(),
		"subscribers": h.events.Count(),
	})
}

// CreateProduct adds one product (two for a dual-market record)
func (h *Handler) CreateProduct(c *gin.Context) {
	var raw domain.RawRecord
	if err := c.ShouldBindJSON(&raw); err != nil {
		respondError(c, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	products, err := h.store.Add(c.Request.Context(), raw)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"products": products,
	})
}

// UpdateProduct applies a partial update
func (h *Handler) UpdateProduct(c *gin.Context) {
	var patch domain.RawRecord
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	product, err := h.store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"product": product,
	})
}

// DeleteProduct removes a product
func (h *Handler) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Deleted product %s", id),
	})
}

// PullProducts refreshes the catalog from the staff backend and waits for it
func (h *Handler) PullProducts(c *gin.Context) {
	result, err := h.store.Pull(c.Request.Context())
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"count":     result.Saved,
		"dropped":   result.Dropped,
		"signature": result.Signature,
		"changed":   result.Changed,
	})
}

// ReceiveWebhook accepts a change notice and pulls in the background.
// Notices arriving while a pull runs are coalesced into one follow-up pull.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	var payload notify.WebhookPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondError(c, http.StatusBadRequest, "invalid webhook payload")
			return
		}
	}

	h.logger.Info("Webhook received",
		zap.String("source", c.GetHeader("X-Webhook-Source")),
		zap.String("delivery_id", c.GetHeader("X-Delivery-ID")),
		zap.String("action", string(payload.Action)),
		zap.Int("products", payload.ProductsCount))

	if !h.pulling.CompareAndSwap(false, true) {
		h.pendingPull.Store(true)
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"message": "Pull already in progress; another will follow",
		})
		return
	}

	h.pulls.Add(1)
	go h.pullUntilSettled()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Pull scheduled",
	})
}

// pullUntilSettled pulls again for as long as notices keep arriving during a
// pull, so the last notice is always followed by a complete pull.
func (h *Handler) pullUntilSettled() {
	defer h.pulls.Done()

	for {
		h.pendingPull.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), pullTimeout)
		if _, err := h.store.Pull(ctx); err != nil {
			h.logger.Warn("Webhook-triggered pull failed", zap.Error(err))
		}
		cancel()

		if h.pendingPull.Load() {
			continue
		}
		h.pulling.Store(false)
		// a notice landing between the check and the release set pending
		// without starting a pull of its own
		if !h.pendingPull.Load() || !h.pulling.CompareAndSwap(false, true) {
			return
		}
	}
}

// Recommend ranks the current catalog for the posted funding profile
func (h *Handler) Recommend(c *gin.Context) {
	var filters domain.RecommendationFilters
	if err := c.ShouldBindJSON(&filters); err != nil {
		respondError(c, http.StatusBadRequest, "country, fundingAmount and lookingFor are required")
		return
	}

	products := h.store.GetAll()
	results, err := h.engine.Recommend(products, filters)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Recommendation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to score catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"recommendations":     results,
		"count":               len(results),
		"availableCategories": h.engine.AvailableCategories(products, filters.Country),
	})
}

// Events streams catalog changes as server-sent events until the client
// disconnects.
func (h *Handler) Events(c *gin.Context) {
	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	stats := h.store.GetStats()
	c.SSEvent("connected", gin.H{
		"count":     stats.Count,
		"signature": stats.Signature,
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("lender-products-updated", event)
		case now := <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": now.UTC()})
		}
		c.Writer.Flush()
	}
}

func (h *Handler) respondStoreError(c *gin.Context, err error) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrProductExists):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidProduct):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEmptyCatalog):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &upstream), errors.Is(err, domain.ErrUpstreamFailure):
		respondError(c, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("Catalog operation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

// decodeRecords accepts {"products": [...]} or a bare array. Items that are
// not objects are kept as empty records so the store counts them as dropped.
func decodeRecords(body io.Reader) ([]domain.RawRecord, error) {
	var payload any
	if err := json.NewDecoder(io.LimitReader(body, maxRequestBody)).Decode(&payload); err != nil {
		return nil, errors.New("request body must be valid JSON")
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["products"].([]any)
		if !ok {
			return nil, errors.New("products array is required")
		}
		items = list
	default:
		return nil, errors.New("products array is required")
	}

	records := make([]domain.RawRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			obj = map[string]any{}
		}
		records = append(records, domain.RawRecord(obj))
	}
	return records, nil
}

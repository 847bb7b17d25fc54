// Package notify tells client applications about catalog changes, either by
// webhook or over server-sent events.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/metrics"
)

// WebhookPath is appended to every client base URL
const WebhookPath = "/webhooks/lender-products/update"

// WebhookSource identifies this service in the X-Webhook-Source header
const WebhookSource = "staff-app"

// WebhookPayload is the body posted to client apps
type WebhookPayload struct {
	DeliveryID    string              `json:"deliveryId"`
	Timestamp     time.Time           `json:"timestamp"`
	ProductsCount int                 `json:"productsCount"`
	Action        domain.ChangeAction `json:"action"`
	ProductID     string              `json:"productId,omitempty"`
	Signature     string              `json:"signature"`
}

// WebhookNotifier posts change events to every configured client app.
// Deliveries are best effort: failures are logged and counted, never returned.
type WebhookNotifier struct {
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.RWMutex
	targets []string
}

// NewWebhookNotifier creates a notifier for the given client base URLs
func NewWebhookNotifier(targets []string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &WebhookNotifier{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	n.SetTargets(targets)
	return n
}

// SetTargets replaces the client list, e.g. after a config reload
func (n *WebhookNotifier) SetTargets(targets []string) {
	cleaned := make([]string, 0, len(targets))
	for _, t := range targets {
		if t = strings.TrimRight(strings.TrimSpace(t), "/"); t != "" {
			cleaned = append(cleaned, t)
		}
	}

	n.mu.Lock()
	n.targets = cleaned
	n.mu.Unlock()
}

// Targets returns a copy of the current client list
func (n *WebhookNotifier) Targets() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.targets...)
}

// Notify delivers event to all targets concurrently and waits for every
// delivery to settle.
func (n *WebhookNotifier) Notify(ctx context.Context, event domain.ChangeEvent) {
	targets := n.Targets()
	if len(targets) == 0 {
		return
	}

	payload := WebhookPayload{
		DeliveryID:    uuid.NewString(),
		Timestamp:     event.Timestamp,
		ProductsCount: event.Count,
		Action:        event.Action,
		ProductID:     event.ProductID,
		Signature:     event.Signature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Failed to encode webhook payload", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			if err := n.deliver(ctx, target, payload.DeliveryID, body); err != nil {
				metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
				n.logger.Warn("Webhook delivery failed",
					zap.String("target", target),
					zap.String("delivery_id", payload.DeliveryID),
					zap.Error(err))
				return
			}
			metrics.WebhookDeliveries.WithLabelValues("success").Inc()
			n.logger.Debug("Webhook delivered",
				zap.String("target", target),
				zap.String("delivery_id", payload.DeliveryID))
		}(target)
	}
	wg.Wait()
}

func (n *WebhookNotifier) deliver(ctx context.Context, target, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+WebhookPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Source", WebhookSource)
	req.Header.Set("X-Delivery-ID", deliveryID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

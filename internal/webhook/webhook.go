// Package webhook signs and delivers outbound notification events
// (model updates, trending changes, error-threshold breaches) to a
// tenant's configured endpoints, grounded on
// original_source/crates/service/src/webhook.rs and the teacher's
// inbound webhook validator (pkg/adapters/github/webhook/validator.go),
// mirrored here for signing instead of verifying and for validating an
// outbound payload against a registered schema instead of an inbound one.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
)

// EventType names the kind of event a webhook payload carries.
type EventType string

const (
	EventModelUpdated          EventType = "model_updated"
	EventTrendingChanged       EventType = "trending_changed"
	EventErrorThresholdExceeded EventType = "error_threshold_exceeded"
)

// Event is the outbound notification payload. DeliveryID is generated
// once per event and carried in the X-Webhook-Delivery header so a
// receiver can dedup retried deliveries.
type Event struct {
	DeliveryID string                 `json:"delivery_id"`
	EventType  EventType              `json:"event_type"`
	TenantID   string                 `json:"tenant_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data"`
}

// NewModelUpdatedEvent reports an incremental or full-rebuild pass.
func NewModelUpdatedEvent(tenantID string, usersUpdated, entitiesUpdated int, durationMS int64) Event {
	return newEvent(EventModelUpdated, tenantID, map[string]interface{}{
		"users_updated":    usersUpdated,
		"entities_updated": entitiesUpdated,
		"duration_ms":      durationMS,
	})
}

// NewTrendingChangedEvent reports a recomputed trending list for one
// entity type.
func NewTrendingChangedEvent(tenantID, entityType string, trendingCount int) Event {
	return newEvent(EventTrendingChanged, tenantID, map[string]interface{}{
		"entity_type":    entityType,
		"trending_count": trendingCount,
	})
}

// NewErrorThresholdExceededEvent reports that errorType crossed
// threshold occurrences.
func NewErrorThresholdExceededEvent(tenantID, errorType string, errorCount, threshold int) Event {
	return newEvent(EventErrorThresholdExceeded, tenantID, map[string]interface{}{
		"error_type":  errorType,
		"error_count": errorCount,
		"threshold":   threshold,
	})
}

func newEvent(eventType EventType, tenantID string, data map[string]interface{}) Event {
	return Event{
		DeliveryID: uuid.NewString(),
		EventType:  eventType,
		TenantID:   tenantID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}
}

// dataSchemas holds one JSON schema per event type, checked against
// Event.Data before every send, grounded on the teacher's inbound
// webhook validator (pkg/adapters/github/webhook/validator.go's
// schemaCatalog/RegisterSchema/ValidatePayload), mirrored here to
// validate the outbound shape instead of an inbound one.
var dataSchemas = map[EventType]string{
	EventModelUpdated: `{
		"type": "object",
		"required": ["users_updated", "entities_updated", "duration_ms"],
		"properties": {
			"users_updated": {"type": "integer"},
			"entities_updated": {"type": "integer"},
			"duration_ms": {"type": "integer"}
		}
	}`,
	EventTrendingChanged: `{
		"type": "object",
		"required": ["entity_type", "trending_count"],
		"properties": {
			"entity_type": {"type": "string"},
			"trending_count": {"type": "integer"}
		}
	}`,
	EventErrorThresholdExceeded: `{
		"type": "object",
		"required": ["error_type", "error_count", "threshold"],
		"properties": {
			"error_type": {"type": "string"},
			"error_count": {"type": "integer"},
			"threshold": {"type": "integer"}
		}
	}`,
}

func buildSchemaCatalog() (map[EventType]*gojsonschema.Schema, error) {
	catalog := make(map[EventType]*gojsonschema.Schema, len(dataSchemas))
	for eventType, schema := range dataSchemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
		if err != nil {
			return nil, fmt.Errorf("load schema for %s: %w", eventType, err)
		}
		catalog[eventType] = s
	}
	return catalog, nil
}

// Config tunes delivery retry behavior.
type Config struct {
	URLs       []string
	Secret     string
	MaxRetries uint64
	BaseDelay  time.Duration
	Timeout    time.Duration
}

func DefaultConfig(urls []string, secret string) Config {
	return Config{
		URLs:       urls,
		Secret:     secret,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Timeout:    30 * time.Second,
	}
}

// Delivery signs and POSTs Events to every configured URL, retrying
// each URL independently with exponential backoff before giving up.
type Delivery struct {
	client        *http.Client
	config        Config
	schemaCatalog map[EventType]*gojsonschema.Schema
	logger        observability.Logger
	metrics       observability.MetricsClient
}

func NewDelivery(config Config, logger observability.Logger, metrics observability.MetricsClient) *Delivery {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	catalog, err := buildSchemaCatalog()
	if err != nil {
		// The schemas are compile-time constants; a failure here means a
		// programming error, not a runtime condition callers can react to.
		panic(err)
	}
	return &Delivery{
		client:        &http.Client{Timeout: config.Timeout},
		config:        config,
		schemaCatalog: catalog,
		logger:        logger.WithPrefix("webhook-delivery"),
		metrics:       metrics,
	}
}

// validateData checks event.Data against its event type's schema,
// catching a malformed payload before it goes out over the wire.
func (d *Delivery) validateData(event Event) error {
	schema, ok := d.schemaCatalog[event.EventType]
	if !ok {
		return nil
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data for validation: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate event data: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("event data failed schema validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 signature of payload under
// the configured secret, in the "sha256=<hex>" form the teacher's
// inbound validator expects on the other end of this exchange.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the expected HMAC-SHA256 of
// payload under secret, using a constant-time comparison.
func Verify(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Dispatch delivers event to every configured URL, retrying each
// independently, and returns the per-URL errors (nil entries mean
// success). A nil slice means no URLs were configured.
func (d *Delivery) Dispatch(ctx context.Context, event Event) []error {
	if len(d.config.URLs) == 0 {
		d.logger.Debug("no webhook URLs configured, skipping dispatch", nil)
		return nil
	}

	if err := d.validateData(event); err != nil {
		return []error{err}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return []error{fmt.Errorf("marshal webhook event: %w", err)}
	}
	signature := Sign(d.config.Secret, payload)

	errs := make([]error, len(d.config.URLs))
	for i, url := range d.config.URLs {
		errs[i] = d.sendWithRetry(ctx, url, payload, signature, event)
	}
	return errs
}

// DispatchAsync runs Dispatch on its own goroutine (fire-and-forget),
// matching the original's dispatch_async: callers on the hot request
// path never block on webhook delivery.
func (d *Delivery) DispatchAsync(event Event) {
	go func() {
		results := d.Dispatch(context.Background(), event)
		failures := 0
		for _, err := range results {
			if err != nil {
				failures++
			}
		}
		if failures > 0 {
			d.logger.Warn("webhook dispatch completed with failures", map[string]interface{}{
				"event_type": string(event.EventType), "tenant_id": event.TenantID,
				"failed": failures, "total": len(results),
			})
		}
	}()
}

func (d *Delivery) sendWithRetry(ctx context.Context, url string, payload []byte, signature string, event Event) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(d.config.BaseDelay), backoff.WithMultiplier(2), backoff.WithRandomizationFactor(0)), d.config.MaxRetries),
		ctx,
	)

	attempt := 0
	op := func() error {
		attempt++
		err := d.send(ctx, url, payload, signature, event)
		if err != nil {
			d.logger.Warn("webhook delivery attempt failed", map[string]interface{}{
				"url": url, "attempt": attempt, "event_type": string(event.EventType), "error": err.Error(),
			})
		}
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		d.metrics.RecordCounter("webhook_delivery_total", 1, map[string]string{"result": "failure"})
		return fmt.Errorf("deliver to %s after %d attempts: %w", url, attempt, err)
	}
	d.metrics.RecordCounter("webhook_delivery_total", 1, map[string]string{"result": "success"})
	return nil
}

func (d *Delivery) send(ctx context.Context, url string, payload []byte, signature string, event Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", string(event.EventType))
	req.Header.Set("X-Webhook-Delivery", event.DeliveryID)
	req.Header.Set("X-Webhook-Timestamp", event.Timestamp.Format(time.RFC3339))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(fmt.Errorf("webhook endpoint returned %d", resp.StatusCode))
	}
	return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
}

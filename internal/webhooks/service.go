package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aquatrace/aquatrace/internal/waterledger"
)

// subscriptionRepo is the storage interface consumed by Service.
type subscriptionRepo interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByOperator(ctx context.Context, operatorID uuid.UUID) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, subID uuid.UUID, limit int) ([]*Delivery, error)
}

// knownEventTypes are the ledger event types a subscription may request.
var knownEventTypes = map[string]bool{
	string(waterledger.EventQualityRecorded):     true,
	string(waterledger.EventDistributionTracked): true,
	string(waterledger.EventDeliveryConfirmed):   true,
	string(waterledger.EventAccessGranted):       true,
	string(waterledger.EventAccessRevoked):       true,
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages subscriptions and dispatches ledger events to them.
type Service struct {
	repo       subscriptionRepo
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewService creates a webhook Service.
func NewService(repo subscriptionRepo, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Subscribe creates a new subscription with a generated HMAC secret.
// Every requested event type must be one the ledger actually emits.
func (s *Service) Subscribe(ctx context.Context, operatorID uuid.UUID, req *CreateSubscriptionRequest) (*Subscription, error) {
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}
	for _, ev := range req.Events {
		if !knownEventTypes[ev] {
			return nil, fmt.Errorf("unknown event type %q", ev)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		OperatorID: operatorID,
		URL:        req.URL,
		Events:     req.Events,
		Secret:     secret,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.logger.Info("webhook subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.Strings("events", sub.Events),
	)
	return sub, nil
}

// Unsubscribe deletes a subscription, checking ownership.
func (s *Service) Unsubscribe(ctx context.Context, operatorID, subID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.OperatorID != operatorID {
		return fmt.Errorf("not authorized to delete this subscription")
	}
	return s.repo.Delete(ctx, subID)
}

// ListByOperator returns all subscriptions for an operator.
func (s *Service) ListByOperator(ctx context.Context, operatorID uuid.UUID) ([]*Subscription, error) {
	return s.repo.ListByOperator(ctx, operatorID)
}

// ListDeliveries returns recent delivery attempts for a subscription the
// operator owns.
func (s *Service) ListDeliveries(ctx context.Context, operatorID, subID uuid.UUID, limit int) ([]*Delivery, error) {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.OperatorID != operatorID {
		return nil, fmt.Errorf("not authorized to read this subscription")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListDeliveries(ctx, subID, limit)
}

// Dispatch fans a ledger event out to all matching subscriptions.
// Deliveries run on their own goroutines with a detached context: a slow
// or dead endpoint must not stall the caller, and retries outlive the
// request that produced the event.
func (s *Service) Dispatch(ctx context.Context, eventType string, at time.Time, fields map[string]string) {
	subs, err := s.repo.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	payload := Payload{
		Type:      eventType,
		Timestamp: at,
		Fields:    fields,
	}

	for _, sub := range subs {
		go s.deliver(context.Background(), sub, payload)
	}
}

// retryDelays precede each attempt: the first fires immediately, then
// backoff grows 1s, 5s, 25s.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 25 * time.Second}

// deliver sends the payload to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("webhook: marshal payload", zap.Error(err))
		return
	}

	signature := signPayload(body, sub.Secret)

	for attempt := 1; attempt <= len(retryDelays); attempt++ {
		time.Sleep(retryDelays[attempt-1])

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EventType:      payload.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}

		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AquaTrace-Signature", signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

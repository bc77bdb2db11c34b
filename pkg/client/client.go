package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Error kind strings carried in the "kind" field of node error responses.
const (
	KindUnauthorized     = "unauthorized"
	KindInvalidParameter = "invalid_parameter"
	KindInvalidReference = "invalid_reference"
	KindUnsafeSource     = "unsafe_source"
	KindAlreadyConfirmed = "already_confirmed"
)

// Sentinel errors for the five ledger rejection kinds. Match them with
// errors.Is:
//
//	_, err := c.TrackDistribution(ctx, req)
//	if errors.Is(err, client.ErrUnsafeSource) {
//	    // the referenced quality record failed its safety check
//	}
var (
	ErrUnauthorized     = errors.New("caller lacks the required role")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidReference = errors.New("referenced record does not exist")
	ErrUnsafeSource     = errors.New("quality record is not safe")
	ErrAlreadyConfirmed = errors.New("delivery already confirmed")
)

// APIError is a structured error response from the node. Errors carrying a
// recognised Kind also match the corresponding sentinel via errors.Is.
type APIError struct {
	Status  int    // HTTP status code
	Kind    string // one of the Kind* constants, or "" for untyped errors
	Field   string // offending field for invalid_parameter errors
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("node error %d: %s", e.Status, e.Message)
}

// Is maps error kinds onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrInvalidParameter:
		return e.Kind == KindInvalidParameter
	case ErrInvalidReference:
		return e.Kind == KindInvalidReference
	case ErrUnsafeSource:
		return e.Kind == KindUnsafeSource
	case ErrAlreadyConfirmed:
		return e.Kind == KindAlreadyConfirmed
	}
	return false
}

// QualityRecord mirrors one water-quality measurement held by the ledger.
// PH is fixed-point x100 (700 = 7.00) and Temperature x10 (250 = 25.0).
type QualityRecord struct {
	ID          uint64 `json:"id"`
	Location    string `json:"location"`
	PH          int64  `json:"ph"`
	TDS         int64  `json:"tds"`
	Turbidity   int64  `json:"turbidity"`
	Temperature int64  `json:"temperature"`
	IsSafe      bool   `json:"is_safe"`
	Verifier    string `json:"verifier"`
	RecordedAt  int64  `json:"recorded_at"`
}

// DistributionRecord mirrors one shipment held by the ledger.
type DistributionRecord struct {
	ID          uint64 `json:"id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Quantity    int64  `json:"quantity"`
	QualityRef  uint64 `json:"quality_ref"`
	Distributor string `json:"distributor"`
	Delivered   bool   `json:"delivered"`
	CreatedAt   int64  `json:"created_at"`
	DeliveredAt int64  `json:"delivered_at"`
}

// RecordQualityRequest is the payload for RecordQuality.
type RecordQualityRequest struct {
	Location    string `json:"location"`
	PH          int64  `json:"ph"`
	TDS         int64  `json:"tds"`
	Turbidity   int64  `json:"turbidity"`
	Temperature int64  `json:"temperature"`
}

// TrackDistributionRequest is the payload for TrackDistribution.
type TrackDistributionRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Quantity    int64  `json:"quantity"`
	QualityRef  uint64 `json:"quality_ref"`
}

// SafetyStatus is the verdict of the most recent quality record at a
// location. Known is false when the location has no records yet; IsSafe and
// QualityID are only meaningful when Known is true.
type SafetyStatus struct {
	Location  string `json:"location"`
	Known     bool   `json:"known"`
	IsSafe    bool   `json:"is_safe"`
	QualityID uint64 `json:"quality_id"`
}

// Client is the AquaTrace SDK entry point.
type Client struct {
	nodeBase   string
	httpClient *http.Client
	cache      *safetyCache
	caller     string // X-Aqua-Caller value for nodes running with auth disabled

	// credential state — guarded by mu
	mu          sync.Mutex
	identity    string
	accessKey   string
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory caching of LatestSafety results with the
// given TTL. Useful for callers that poll safety before every dispatch.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newSafetyCache(ttl)
		return nil
	}
}

// WithAccessKey configures the enrolled ledger identity and its access key.
// Bearer tokens are fetched from the node on demand and refreshed before
// expiry.
func WithAccessKey(identity, accessKey string) Option {
	return func(c *Client) error {
		c.identity = identity
		c.accessKey = accessKey
		return nil
	}
}

// WithBearerToken attaches a pre-obtained token to every request.
// The token is treated as long-lived and will not be auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{} // zero = manual, never auto-refresh
		return nil
	}
}

// WithCaller sets the X-Aqua-Caller header sent on every request. It only
// has an effect against nodes running with caller authentication disabled,
// where the header stands in for the token identity.
func WithCaller(account string) Option {
	return func(c *Client) error {
		c.caller = account
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed node.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a new AquaTrace SDK Client connected to nodeBase.
//
//	c, err := client.New("https://node.aquatrace.example",
//	    client.WithAccessKey("plant-7", accessKey),
//	    client.WithCacheTTL(30*time.Second),
//	)
func New(nodeBase string, opts ...Option) (*Client, error) {
	c := &Client{
		nodeBase:   strings.TrimRight(nodeBase, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(nodeBase string, opts ...Option) *Client {
	c, err := New(nodeBase, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ── Quality ──────────────────────────────────────────────────────────────────

// RecordQuality appends a measurement to the quality ledger and returns the
// stored record, including its assigned ID and safety verdict. The caller
// identity must hold the verifier role.
func (c *Client) RecordQuality(ctx context.Context, reg RecordQualityRequest) (*QualityRecord, error) {
	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+"/api/v1/quality", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		QualityID uint64         `json:"quality_id"`
		Record    *QualityRecord `json:"record"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Record == nil {
		// The node appended the record but could not read it back; the ID
		// is still authoritative.
		return &QualityRecord{ID: resp.QualityID}, nil
	}
	return resp.Record, nil
}

// GetQuality fetches a single quality record by ID.
func (c *Client) GetQuality(ctx context.Context, id uint64) (*QualityRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/quality/%d", c.nodeBase, id), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Record *QualityRecord `json:"record"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Record, nil
}

// QualityHistory returns every quality record ID for a location, oldest
// first. Unknown locations yield an empty slice, not an error.
func (c *Client) QualityHistory(ctx context.Context, location string) ([]uint64, error) {
	endpoint := c.nodeBase + "/api/v1/quality/history?location=" + url.QueryEscape(location)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		QualityIDs []uint64 `json:"quality_ids"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.QualityIDs, nil
}

// LatestSafety returns the stored verdict of the most recent quality record
// at a location. Results are cached when WithCacheTTL is configured.
func (c *Client) LatestSafety(ctx context.Context, location string) (*SafetyStatus, error) {
	if c.cache != nil {
		if status, ok := c.cache.get(location); ok {
			return status, nil
		}
	}

	endpoint := c.nodeBase + "/api/v1/quality/latest?location=" + url.QueryEscape(location)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var status SafetyStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if c.cache != nil {
		c.cache.set(location, &status)
	}
	return &status, nil
}

// ── Distribution ─────────────────────────────────────────────────────────────

// TrackDistribution appends a shipment to the distribution ledger and
// returns the stored record. The caller identity must hold the distributor
// role and the referenced quality record must be safe.
func (c *Client) TrackDistribution(ctx context.Context, reg TrackDistributionRequest) (*DistributionRecord, error) {
	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+"/api/v1/distributions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		DistributionID uint64              `json:"distribution_id"`
		Record         *DistributionRecord `json:"record"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Record == nil {
		return &DistributionRecord{ID: resp.DistributionID}, nil
	}
	return resp.Record, nil
}

// ConfirmDelivery marks a shipment as delivered. Only the distributor that
// created the record may confirm it, and only once; repeat confirmations
// fail with ErrAlreadyConfirmed.
func (c *Client) ConfirmDelivery(ctx context.Context, id uint64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/v1/distributions/%d/confirm", c.nodeBase, id), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	_, err = c.do(req)
	return err
}

// GetDistribution fetches a single distribution record by ID.
func (c *Client) GetDistribution(ctx context.Context, id uint64) (*DistributionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/distributions/%d", c.nodeBase, id), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Record *DistributionRecord `json:"record"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Record, nil
}

// DeliveryStatus reports whether a shipment has been confirmed delivered.
func (c *Client) DeliveryStatus(ctx context.Context, id uint64) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/distributions/%d/status", c.nodeBase, id), nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return false, err
	}

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return resp.Delivered, nil
}

// ── Tokens ───────────────────────────────────────────────────────────────────

// FetchToken exchanges the configured access key for a Bearer token, caches
// it, and returns it. Requires WithAccessKey or WithCredentialsFile.
// Subsequent calls reuse the cached token until it approaches expiry.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	identity, accessKey := c.identity, c.accessKey
	c.mu.Unlock()

	token, expiry, err := c.fetchTokenRaw(ctx, identity, accessKey)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.bearerToken = token
	c.tokenExpiry = expiry
	c.mu.Unlock()
	return token, nil
}

// fetchTokenRaw fetches a fresh token from the node without touching cached
// state.
func (c *Client) fetchTokenRaw(ctx context.Context, identity, accessKey string) (token string, expiry time.Time, err error) {
	if identity == "" || accessKey == "" {
		return "", time.Time{}, fmt.Errorf("no access key configured; use WithAccessKey")
	}

	payload, _ := json.Marshal(map[string]string{"identity": identity, "access_key": accessKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+"/api/v1/token", bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Use httpClient directly — the token endpoint authenticates via the
	// access key in the body, not via an existing Bearer token.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("token endpoint error %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Error != "" {
		return "", time.Time{}, fmt.Errorf("token endpoint error: %s", parsed.Error)
	}

	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	const refreshBuffer = 60 * time.Second
	exp := time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - refreshBuffer)
	return parsed.AccessToken, exp, nil
}

// ensureToken returns a valid bearer token, fetching a new one if the cached
// token is absent or approaching expiry. Returns "" for clients with no
// credentials at all, since reads are public. Thread-safe.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// tokenExpiry.IsZero() means the token was set manually via
	// WithBearerToken and should never be auto-refreshed.
	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	if c.identity == "" || c.accessKey == "" {
		return "", nil
	}

	token, expiry, err := c.fetchTokenRaw(ctx, c.identity, c.accessKey)
	if err != nil {
		return "", err
	}
	c.bearerToken = token
	c.tokenExpiry = expiry
	return token, nil
}

// ── HTTP plumbing ────────────────────────────────────────────────────────────

// do executes an HTTP request, attaching credentials, and decodes error
// responses into *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.caller != "" {
		req.Header.Set("X-Aqua-Caller", c.caller)
	}
	token, err := c.ensureToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// decodeAPIError turns a non-2xx node response into an *APIError, keeping
// the structured kind and field when the body carries them.
func decodeAPIError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Kind: payload.Kind, Field: payload.Field, Message: payload.Error}
}

// --- simple in-memory safety cache ---

type cacheEntry struct {
	status    *SafetyStatus
	expiresAt time.Time
}

type safetyCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newSafetyCache(ttl time.Duration) *safetyCache {
	return &safetyCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (sc *safetyCache) get(key string) (*SafetyStatus, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	e, ok := sc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.status, true
}

func (sc *safetyCache) set(key string, status *SafetyStatus) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.entries[key] = &cacheEntry{status: status, expiresAt: time.Now().Add(sc.ttl)}
}

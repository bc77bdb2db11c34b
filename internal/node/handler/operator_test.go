package handler_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/aquatrace/aquatrace/internal/node/handler"
	"github.com/aquatrace/aquatrace/internal/operators"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Stub operator service ─────────────────────────────────────────────────

type stubOperatorSvc struct {
	signupOp  *operators.Operator
	signupErr error
	loginOp   *operators.Operator
	loginErr  error
	getOp     *operators.Operator
	getErr    error
	oauthOp   *operators.Operator
	oauthNew  bool
	oauthErr  error
}

func (s *stubOperatorSvc) Signup(_ context.Context, email, _, _ string) (*operators.Operator, error) {
	if s.signupErr != nil {
		return nil, s.signupErr
	}
	if s.signupOp != nil {
		return s.signupOp, nil
	}
	return &operators.Operator{ID: uuid.New(), Email: email, Name: "Alice"}, nil
}

func (s *stubOperatorSvc) Login(_ context.Context, email, _ string) (*operators.Operator, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	if s.loginOp != nil {
		return s.loginOp, nil
	}
	return &operators.Operator{ID: uuid.New(), Email: email, Name: "Alice"}, nil
}

func (s *stubOperatorSvc) GetByID(_ context.Context, id uuid.UUID) (*operators.Operator, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.getOp != nil {
		return s.getOp, nil
	}
	return &operators.Operator{ID: id, Email: "alice@waterworks.example", Name: "Alice"}, nil
}

func (s *stubOperatorSvc) GetOrCreateFromOAuth(_ context.Context, _, _, email, _ string) (*operators.Operator, bool, error) {
	if s.oauthErr != nil {
		return nil, false, s.oauthErr
	}
	if s.oauthOp != nil {
		return s.oauthOp, s.oauthNew, nil
	}
	return &operators.Operator{ID: uuid.New(), Email: email, Name: "Alice"}, true, nil
}

// ── Test setup ────────────────────────────────────────────────────────────

// testSigningKey generates an RSA key for token issuance. Production keys
// are 4096 bits but 2048 keeps the test suite fast.
func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func setupOperatorRouter(t *testing.T, svc *stubOperatorSvc) (*gin.Engine, *identity.OperatorTokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := identity.NewOperatorTokenIssuer(testSigningKey(t), "https://node.aquatrace.example", time.Hour)

	h := handler.NewOperatorHandler(svc, tokens, nil, zap.NewNop())
	h.SetAdminSecret("test-admin-secret")

	r := gin.New()
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, tokens
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestOperatorSignup_201(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{})

	body := `{"email":"alice@waterworks.example","password":"password123","name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["token"] == nil {
		t.Error("expected token in response")
	}
	if resp["operator"] == nil {
		t.Error("expected operator in response")
	}
}

func TestOperatorSignup_400_missingEmail(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{})

	body := `{"password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestOperatorSignup_400_weakPassword(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{signupErr: operators.ErrWeakPassword})

	body := `{"email":"alice@waterworks.example","password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOperatorSignup_409_duplicateEmail(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{signupErr: operators.ErrDuplicateEmail})

	body := `{"email":"alice@waterworks.example","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOperatorLogin_200(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{})

	body := `{"email":"alice@waterworks.example","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["token"] == nil {
		t.Error("expected token in response")
	}
}

func TestOperatorLogin_401_badCredentials(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{loginErr: errors.New("invalid credentials")})

	body := `{"email":"alice@waterworks.example","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestOperatorMe_200(t *testing.T) {
	router, tokens := setupOperatorRouter(t, &stubOperatorSvc{})

	opID := uuid.New()
	tok, err := tokens.Issue(opID.String(), "alice@waterworks.example", "Alice")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Operator struct {
			ID string `json:"id"`
		} `json:"operator"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Operator.ID != opID.String() {
		t.Errorf("expected operator ID %s, got %s", opID, resp.Operator.ID)
	}
}

func TestOperatorMe_401_noToken(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminToken_200(t *testing.T) {
	router, tokens := setupOperatorRouter(t, &stubOperatorSvc{})

	body := `{"secret":"test-admin-secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/admin-token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	tok, _ := resp["token"].(string)
	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("verify minted admin token: %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("expected admin role, got %q", claims.Role)
	}
}

func TestAdminToken_401_wrongSecret(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{})

	body := `{"secret":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/admin-token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminToken_503_notConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := identity.NewOperatorTokenIssuer(testSigningKey(t), "https://node.aquatrace.example", time.Hour)
	h := handler.NewOperatorHandler(&stubOperatorSvc{}, tokens, nil, zap.NewNop())

	r := gin.New()
	h.Register(r.Group("/api/v1"))

	body := `{"secret":"anything"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators/admin-token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestOAuthRedirect_422_unconfiguredProvider(t *testing.T) {
	router, _ := setupOperatorRouter(t, &stubOperatorSvc{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/oauth/github", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestOAuthRedirect_302_configuredProvider(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := identity.NewOperatorTokenIssuer(testSigningKey(t), "https://node.aquatrace.example", time.Hour)
	providers := map[string]handler.OAuthProviderConfig{
		"github": {ClientID: "cid", ClientSecret: "csecret", RedirectURL: "https://node.aquatrace.example/callback"},
	}
	h := handler.NewOperatorHandler(&stubOperatorSvc{}, tokens, providers, zap.NewNop())

	r := gin.New()
	h.Register(r.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/oauth/github", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "github.com") || !strings.Contains(loc, "state=") {
		t.Errorf("redirect should point at the provider with a state parameter, got %q", loc)
	}
}

func TestOAuthCallback_400_invalidState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := identity.NewOperatorTokenIssuer(testSigningKey(t), "https://node.aquatrace.example", time.Hour)
	providers := map[string]handler.OAuthProviderConfig{
		"github": {ClientID: "cid", ClientSecret: "csecret", RedirectURL: "https://node.aquatrace.example/callback"},
	}
	h := handler.NewOperatorHandler(&stubOperatorSvc{}, tokens, providers, zap.NewNop())

	r := gin.New()
	h.Register(r.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators/oauth/github/callback?state=bogus&code=abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

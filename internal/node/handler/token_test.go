package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/aquatrace/aquatrace/internal/node/handler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupIdentityRouter(t *testing.T) (*gin.Engine, *identity.OperatorTokenIssuer, *identity.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key := testSigningKey(t)
	callerTokens := identity.NewTokenIssuer(key, "https://node.aquatrace.example", time.Hour)
	operatorTokens := identity.NewOperatorTokenIssuer(key, "https://node.aquatrace.example", time.Hour)
	registrar := identity.NewRegistrar(identity.NewMemoryCredentialStore(), callerTokens, zap.NewNop())

	h := handler.NewIdentityHandler(registrar, callerTokens, operatorTokens, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, operatorTokens, callerTokens
}

func adminToken(t *testing.T, tokens *identity.OperatorTokenIssuer) string {
	t.Helper()
	tok, err := tokens.IssueAdminToken(0)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	return tok
}

// enrollIdentity enrolls a ledger identity via the API and returns its
// access key.
func enrollIdentity(t *testing.T, router *gin.Engine, admin, ident string) string {
	t.Helper()
	body := `{"identity":"` + ident + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	key, _ := resp["access_key"].(string)
	return key
}

func TestEnroll_201(t *testing.T) {
	router, opTokens, _ := setupIdentityRouter(t)
	admin := adminToken(t, opTokens)

	key := enrollIdentity(t, router, admin, "plant-7")
	if len(key) != 64 {
		t.Errorf("expected 64-char access key, got %d chars", len(key))
	}
}

func TestEnroll_401_noToken(t *testing.T) {
	router, _, _ := setupIdentityRouter(t)

	body := `{"identity":"plant-7"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestEnroll_403_operatorTokenIsNotAdmin(t *testing.T) {
	router, opTokens, _ := setupIdentityRouter(t)

	tok, err := opTokens.Issue("11111111-1111-1111-1111-111111111111", "alice@waterworks.example", "Alice")
	if err != nil {
		t.Fatalf("issue operator token: %v", err)
	}

	body := `{"identity":"plant-7"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListIdentities_200(t *testing.T) {
	router, opTokens, _ := setupIdentityRouter(t)
	admin := adminToken(t, opTokens)

	enrollIdentity(t, router, admin, "plant-7")
	enrollIdentity(t, router, admin, "lab-3")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("expected 2 identities, got %v", resp["count"])
	}
	if strings.Contains(w.Body.String(), "key_hash") {
		t.Error("identity listing must not expose key hashes")
	}
}

func TestIssueToken_200(t *testing.T) {
	router, opTokens, callerTokens := setupIdentityRouter(t)
	admin := adminToken(t, opTokens)
	key := enrollIdentity(t, router, admin, "plant-7")

	body := `{"identity":"plant-7","access_key":"` + key + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TokenType != "Bearer" {
		t.Errorf("expected Bearer token type, got %q", resp.TokenType)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expected 3600s expiry, got %d", resp.ExpiresIn)
	}

	claims, err := callerTokens.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Identity != "plant-7" {
		t.Errorf("expected identity plant-7, got %q", claims.Identity)
	}
}

func TestIssueToken_401_wrongKey(t *testing.T) {
	router, opTokens, _ := setupIdentityRouter(t)
	admin := adminToken(t, opTokens)
	enrollIdentity(t, router, admin, "plant-7")

	body := `{"identity":"plant-7","access_key":"` + strings.Repeat("0", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIssueToken_401_unknownIdentity(t *testing.T) {
	router, _, _ := setupIdentityRouter(t)

	body := `{"identity":"ghost","access_key":"` + strings.Repeat("0", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetPublicKey_200(t *testing.T) {
	router, _, _ := setupIdentityRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/token/pubkey", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "BEGIN PUBLIC KEY") {
		t.Errorf("expected PEM public key, got %q", w.Body.String())
	}
}

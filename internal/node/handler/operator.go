package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/aquatrace/aquatrace/internal/operators"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// OAuthProviderConfig holds OAuth client credentials for a single provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// operatorSvc is the interface expected by OperatorHandler, satisfied by
// *operators.Service.
type operatorSvc interface {
	Signup(ctx context.Context, email, password, name string) (*operators.Operator, error)
	Login(ctx context.Context, email, password string) (*operators.Operator, error)
	GetByID(ctx context.Context, id uuid.UUID) (*operators.Operator, error)
	GetOrCreateFromOAuth(ctx context.Context, provider, providerID, email, name string) (*operators.Operator, bool, error)
}

// OperatorHandler handles operator console authentication routes.
type OperatorHandler struct {
	operators   operatorSvc
	tokens      *identity.OperatorTokenIssuer
	oauthCfgs   map[string]*oauth2.Config
	adminSecret string // "" = admin token minting disabled
	consoleURL  string // used to redirect after OAuth callback
	logger      *zap.Logger
}

// NewOperatorHandler creates an OperatorHandler.
// oauthProviders may be nil or empty to disable OAuth routes.
func NewOperatorHandler(
	svc operatorSvc,
	tokens *identity.OperatorTokenIssuer,
	oauthProviders map[string]OAuthProviderConfig,
	logger *zap.Logger,
) *OperatorHandler {
	return &OperatorHandler{
		operators:  svc,
		tokens:     tokens,
		oauthCfgs:  buildOAuthConfigs(oauthProviders),
		consoleURL: "http://localhost:3000",
		logger:     logger,
	}
}

// SetAdminSecret enables POST /operators/admin-token. The secret comes from
// node configuration and is compared in constant time.
func (h *OperatorHandler) SetAdminSecret(secret string) {
	h.adminSecret = secret
}

// SetConsoleURL sets the base URL of the operator console for OAuth
// callback redirects.
func (h *OperatorHandler) SetConsoleURL(url string) {
	h.consoleURL = url
}

// buildOAuthConfigs converts the raw provider config map into oauth2.Config
// instances.
func buildOAuthConfigs(providers map[string]OAuthProviderConfig) map[string]*oauth2.Config {
	cfgs := make(map[string]*oauth2.Config)
	for name, p := range providers {
		if p.ClientID == "" || p.ClientSecret == "" {
			continue
		}
		var endpoint oauth2.Endpoint
		var scopes []string
		switch name {
		case "github":
			endpoint = github.Endpoint
			scopes = []string{"user:email"}
		case "google":
			endpoint = google.Endpoint
			scopes = []string{"openid", "email", "profile"}
		default:
			continue
		}
		cfgs[name] = &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		}
	}
	return cfgs
}

// Register mounts all operator routes on the provided router group.
func (h *OperatorHandler) Register(rg *gin.RouterGroup) {
	ops := rg.Group("/operators")
	{
		ops.POST("/signup", h.Signup)
		ops.POST("/login", h.Login)
		ops.POST("/logout", h.Logout)
		ops.POST("/admin-token", h.AdminToken)
		ops.GET("/me", identity.RequireOperator(h.tokens), h.Me)
		ops.GET("/oauth/:provider", h.OAuthRedirect)
		ops.GET("/oauth/:provider/callback", h.OAuthCallback)
	}
}

// ─── Request / Response types ────────────────────────────────────────────────

type signupRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminTokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Signup handles POST /operators/signup — creates a new operator account.
func (h *OperatorHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.operators.Signup(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, operators.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		if errors.Is(err, operators.ErrWeakPassword) || errors.Is(err, operators.ErrMissingFields) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("operator signup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	tok, err := h.tokens.Issue(op.ID.String(), op.Email, op.Name)
	if err != nil {
		h.logger.Error("issue operator token after signup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"operator": op, "token": tok})
}

// Login handles POST /operators/login — authenticates with email/password.
func (h *OperatorHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.operators.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.tokens.Issue(op.ID.String(), op.Email, op.Name)
	if err != nil {
		h.logger.Error("issue operator token after login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"operator": op, "token": tok})
}

// Logout handles POST /operators/logout.
// Operator JWTs are stateless so revocation is client-side: the client
// discards the token.
func (h *OperatorHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "logged out; discard your token client-side",
	})
}

// AdminToken handles POST /operators/admin-token — exchanges the configured
// admin secret for a short-lived admin token used on enrollment routes.
func (h *OperatorHandler) AdminToken(c *gin.Context) {
	if h.adminSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin token minting not configured"})
		return
	}

	var req adminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.adminSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
		return
	}

	tok, err := h.tokens.IssueAdminToken(0)
	if err != nil {
		h.logger.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "token_type": "Bearer"})
}

// Me handles GET /operators/me — returns the authenticated operator.
func (h *OperatorHandler) Me(c *gin.Context) {
	claims := identity.OperatorClaimsFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "operator authentication required"})
		return
	}
	id, err := uuid.Parse(claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operator ID in token"})
		return
	}

	op, err := h.operators.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, operators.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "operator not found"})
			return
		}
		h.logger.Error("get operator", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load operator"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operator": op})
}

// OAuthRedirect handles GET /operators/oauth/:provider — redirects to the
// OAuth provider.
func (h *OperatorHandler) OAuthRedirect(c *gin.Context) {
	provider := c.Param("provider")
	cfg, ok := h.oauthCfgs[provider]
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("OAuth provider %q not configured", provider)})
		return
	}

	state, err := h.tokens.IssueOAuthState(provider)
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate OAuth state"})
		return
	}

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
	c.Redirect(http.StatusFound, url)
}

// OAuthCallback handles GET /operators/oauth/:provider/callback.
func (h *OperatorHandler) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	cfg, ok := h.oauthCfgs[provider]
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("OAuth provider %q not configured", provider)})
		return
	}

	// Validate state to prevent CSRF
	stateParam := c.Query("state")
	gotProvider, err := h.tokens.VerifyOAuthState(stateParam)
	if err != nil || gotProvider != provider {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth authorization failed: " + errMsg})
		return
	}

	oauthToken, err := cfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth code exchange failed"})
		return
	}

	providerID, email, name, err := fetchOAuthUserInfo(c.Request.Context(), provider, oauthToken.AccessToken)
	if err != nil {
		h.logger.Error("fetch oauth user info", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user info from provider"})
		return
	}

	op, _, err := h.operators.GetOrCreateFromOAuth(c.Request.Context(), provider, providerID, email, name)
	if err != nil {
		h.logger.Error("get or create oauth operator", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process OAuth login"})
		return
	}

	tok, err := h.tokens.Issue(op.ID.String(), op.Email, op.Name)
	if err != nil {
		h.logger.Error("issue operator token after oauth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	// Redirect the browser to the console callback page with the token in
	// the URL fragment (#). Fragments are never sent to the server, so the
	// token stays client-side only.
	c.Redirect(http.StatusFound, h.consoleURL+"/oauth/callback#token="+tok)
}

// ─── OAuth user-info helpers ──────────────────────────────────────────────────

// fetchOAuthUserInfo calls the provider's user-info API and returns
// (providerID, email, name).
func fetchOAuthUserInfo(ctx context.Context, provider, accessToken string) (string, string, string, error) {
	switch provider {
	case "github":
		return fetchGitHubUserInfo(ctx, accessToken)
	case "google":
		return fetchGoogleUserInfo(ctx, accessToken)
	default:
		return "", "", "", fmt.Errorf("unsupported provider: %s", provider)
	}
}

func fetchGitHubUserInfo(ctx context.Context, accessToken string) (id, email, name string, err error) {
	body, err := oauthAPIGet(ctx, "https://api.github.com/user", accessToken)
	if err != nil {
		return "", "", "", err
	}

	var info struct {
		ID    int    `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", "", "", fmt.Errorf("parse github user info: %w", err)
	}

	// GitHub may not return a public email; fall back to /user/emails.
	if info.Email == "" {
		info.Email, _ = fetchGitHubPrimaryEmail(ctx, accessToken)
	}

	displayName := info.Name
	if displayName == "" {
		displayName = info.Login
	}

	return fmt.Sprintf("%d", info.ID), info.Email, displayName, nil
}

func fetchGitHubPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	body, err := oauthAPIGet(ctx, "https://api.github.com/user/emails", accessToken)
	if err != nil {
		return "", err
	}
	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", nil
}

func fetchGoogleUserInfo(ctx context.Context, accessToken string) (id, email, name string, err error) {
	body, err := oauthAPIGet(ctx, "https://www.googleapis.com/oauth2/v2/userinfo", accessToken)
	if err != nil {
		return "", "", "", err
	}
	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", "", "", fmt.Errorf("parse google user info: %w", err)
	}
	return info.ID, info.Email, info.Name, nil
}

func oauthAPIGet(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	// GitHub requires a User-Agent header
	if strings.Contains(url, "github.com") {
		req.Header.Set("User-Agent", "aquatrace-node/1.0")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityHandler handles ledger identity enrollment and caller token
// issuance. Enrollment is admin-only; the token exchange is open because it
// requires the access key handed out at enrollment.
type IdentityHandler struct {
	registrar      *identity.Registrar
	tokens         *identity.TokenIssuer
	operatorTokens *identity.OperatorTokenIssuer
	logger         *zap.Logger
}

// NewIdentityHandler creates an IdentityHandler.
func NewIdentityHandler(registrar *identity.Registrar, tokens *identity.TokenIssuer, operatorTokens *identity.OperatorTokenIssuer, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{registrar: registrar, tokens: tokens, operatorTokens: operatorTokens, logger: logger}
}

// Register wires the identity routes onto the API group.
func (h *IdentityHandler) Register(rg *gin.RouterGroup) {
	identities := rg.Group("/identities")
	{
		identities.POST("", identity.RequireAdmin(h.operatorTokens), h.Enroll)
		identities.GET("", identity.RequireAdmin(h.operatorTokens), h.ListIdentities)
	}

	rg.POST("/token", h.IssueToken)
	rg.GET("/token/pubkey", h.GetPublicKey)
}

// enrollRequest is the body for POST /identities.
type enrollRequest struct {
	Identity string `json:"identity" binding:"required"`
}

// Enroll handles POST /identities — registers a ledger identity and returns
// its access key. Re-enrolling an existing identity rotates the key.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ident := strings.TrimSpace(req.Identity)
	if ident == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity must not be blank"})
		return
	}

	accessKey, err := h.registrar.Enroll(c.Request.Context(), ident)
	if err != nil {
		h.logger.Error("enroll identity", zap.String("identity", ident), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identity":   ident,
		"access_key": accessKey,
		"note":       "Store the access key securely. It will not be shown again.",
	})
}

// ListIdentities handles GET /identities — returns the enrolled identities
// without their key hashes.
func (h *IdentityHandler) ListIdentities(c *gin.Context) {
	creds, err := h.registrar.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list identities", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list identities"})
		return
	}
	if creds == nil {
		creds = []*identity.Credential{}
	}
	c.JSON(http.StatusOK, gin.H{"identities": creds, "count": len(creds)})
}

// tokenRequest is the body for POST /token.
type tokenRequest struct {
	Identity  string `json:"identity" binding:"required"`
	AccessKey string `json:"access_key" binding:"required"`
}

// IssueToken handles POST /token — exchanges an identity's access key for a
// short-lived Bearer token.
//
//	Response:
//	  {"access_token":"...", "token_type":"Bearer", "expires_in":3600}
func (h *IdentityHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.registrar.IssueToken(c.Request.Context(), req.Identity, req.AccessKey)
	if err != nil {
		if errors.Is(err, identity.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("issue caller token", zap.String("identity", req.Identity), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokens.TTL().Seconds()),
	})
}

// GetPublicKey handles GET /token/pubkey — returns the PEM-encoded RSA
// public key callers can use to verify tokens offline.
func (h *IdentityHandler) GetPublicKey(c *gin.Context) {
	pemStr, err := h.tokens.PublicKeyPEM()
	if err != nil {
		h.logger.Error("encode public key", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode public key"})
		return
	}
	c.Data(http.StatusOK, "application/x-pem-file", []byte(pemStr))
}

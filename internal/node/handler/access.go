package handler

import (
	"net/http"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessHandler handles HTTP requests for the ledger's access registry.
// Grants and revocations are owner-only; the ledger enforces that, the
// handler just relays the caller identity.
type AccessHandler struct {
	ledger *waterledger.Ledger
	tokens *identity.TokenIssuer // nil = auth disabled, caller from X-Aqua-Caller
	logger *zap.Logger
}

// NewAccessHandler creates a new AccessHandler. tokens may be nil to
// disable caller authentication on mutating routes.
func NewAccessHandler(ledger *waterledger.Ledger, tokens *identity.TokenIssuer, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{ledger: ledger, tokens: tokens, logger: logger}
}

// Register registers all access registry routes on the given router group.
func (h *AccessHandler) Register(rg *gin.RouterGroup) {
	access := rg.Group("/access")
	{
		access.GET("/owner", h.GetOwner)
		access.GET("/roles/:account", h.GetRoles)

		access.POST("/verifiers", requireIdentity(h.tokens), h.GrantVerifier)
		access.DELETE("/verifiers/:account", requireIdentity(h.tokens), h.RevokeVerifier)
		access.GET("/verifiers/:account", h.CheckVerifier)

		access.POST("/distributors", requireIdentity(h.tokens), h.GrantDistributor)
		access.DELETE("/distributors/:account", requireIdentity(h.tokens), h.RevokeDistributor)
		access.GET("/distributors/:account", h.CheckDistributor)
	}
}

// roleChangeRequest is the body for grant requests.
type roleChangeRequest struct {
	Account string `json:"account" binding:"required"`
}

// GetOwner handles GET /access/owner — returns the genesis owner identity.
// The owner is "" until the ledger is initialised.
func (h *AccessHandler) GetOwner(c *gin.Context) {
	owner, err := h.ledger.Owner(c.Request.Context())
	if err != nil {
		h.logger.Error("read owner", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read owner"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner})
}

// GetRoles handles GET /access/roles/:account — returns both role
// memberships for an account in one response.
func (h *AccessHandler) GetRoles(c *gin.Context) {
	account := c.Param("account")
	ctx := c.Request.Context()

	verifier, err := h.ledger.IsVerifier(ctx, account)
	if err != nil {
		h.logger.Error("check verifier role", zap.String("account", account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check roles"})
		return
	}
	distributor, err := h.ledger.IsDistributor(ctx, account)
	if err != nil {
		h.logger.Error("check distributor role", zap.String("account", account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check roles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "verifier": verifier, "distributor": distributor})
}

// GrantVerifier handles POST /access/verifiers — adds an account to the
// verifier set. Owner only; idempotent.
func (h *AccessHandler) GrantVerifier(c *gin.Context) {
	h.changeRole(c, waterledger.RoleVerifier, true)
}

// RevokeVerifier handles DELETE /access/verifiers/:account — removes an
// account from the verifier set. Owner only; idempotent.
func (h *AccessHandler) RevokeVerifier(c *gin.Context) {
	h.revokeRole(c, waterledger.RoleVerifier)
}

// GrantDistributor handles POST /access/distributors — adds an account to
// the distributor set. Owner only; idempotent.
func (h *AccessHandler) GrantDistributor(c *gin.Context) {
	h.changeRole(c, waterledger.RoleDistributor, true)
}

// RevokeDistributor handles DELETE /access/distributors/:account — removes
// an account from the distributor set. Owner only; idempotent.
func (h *AccessHandler) RevokeDistributor(c *gin.Context) {
	h.revokeRole(c, waterledger.RoleDistributor)
}

// CheckVerifier handles GET /access/verifiers/:account.
func (h *AccessHandler) CheckVerifier(c *gin.Context) {
	account := c.Param("account")
	ok, err := h.ledger.IsVerifier(c.Request.Context(), account)
	if err != nil {
		h.logger.Error("check verifier role", zap.String("account", account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "verifier": ok})
}

// CheckDistributor handles GET /access/distributors/:account.
func (h *AccessHandler) CheckDistributor(c *gin.Context) {
	account := c.Param("account")
	ok, err := h.ledger.IsDistributor(c.Request.Context(), account)
	if err != nil {
		h.logger.Error("check distributor role", zap.String("account", account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "distributor": ok})
}

// changeRole grants a role to the account named in the request body.
func (h *AccessHandler) changeRole(c *gin.Context, role waterledger.Role, grant bool) {
	var req roleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applyRoleChange(c, role, req.Account, grant)
}

// revokeRole revokes a role from the account named in the path.
func (h *AccessHandler) revokeRole(c *gin.Context, role waterledger.Role) {
	account := c.Param("account")
	h.applyRoleChange(c, role, account, false)
}

func (h *AccessHandler) applyRoleChange(c *gin.Context, role waterledger.Role, account string, grant bool) {
	caller := callerIdentity(c)
	if caller == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	ctx := c.Request.Context()
	var err error
	switch {
	case role == waterledger.RoleVerifier && grant:
		err = h.ledger.GrantVerifier(ctx, caller, account)
	case role == waterledger.RoleVerifier:
		err = h.ledger.RevokeVerifier(ctx, caller, account)
	case grant:
		err = h.ledger.GrantDistributor(ctx, caller, account)
	default:
		err = h.ledger.RevokeDistributor(ctx, caller, account)
	}
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account, "role": string(role), "member": grant})
}

package handler

import (
	"net/http"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DistributionHandler handles HTTP requests for the distribution side of
// the ledger.
type DistributionHandler struct {
	ledger *waterledger.Ledger
	tokens *identity.TokenIssuer // nil = auth disabled, caller from X-Aqua-Caller
	logger *zap.Logger
}

// NewDistributionHandler creates a new DistributionHandler. tokens may be
// nil to disable caller authentication on mutating routes.
func NewDistributionHandler(ledger *waterledger.Ledger, tokens *identity.TokenIssuer, logger *zap.Logger) *DistributionHandler {
	return &DistributionHandler{ledger: ledger, tokens: tokens, logger: logger}
}

// Register registers all distribution routes on the given router group.
func (h *DistributionHandler) Register(rg *gin.RouterGroup) {
	dist := rg.Group("/distributions")
	{
		dist.POST("", requireIdentity(h.tokens), h.TrackDistribution)
		dist.POST("/:id/confirm", requireIdentity(h.tokens), h.ConfirmDelivery)
		dist.GET("/:id", h.GetDistribution)
		dist.GET("/:id/status", h.DeliveryStatus)
	}
}

// trackDistributionRequest is the body for POST /distributions. QualityRef
// must name a quality record whose stored verdict is safe.
type trackDistributionRequest struct {
	Source      string `json:"source" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	Quantity    int64  `json:"quantity"` // litres
	QualityRef  uint64 `json:"quality_ref"`
}

// TrackDistribution handles POST /distributions — appends a distribution
// backed by a safe quality record.
func (h *DistributionHandler) TrackDistribution(c *gin.Context) {
	var req trackDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := callerIdentity(c)
	if caller == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	ctx := c.Request.Context()
	id, err := h.ledger.TrackDistribution(ctx, caller, req.Source, req.Destination, req.Quantity, req.QualityRef)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}

	rec, err := h.ledger.Distribution(ctx, id)
	if err != nil {
		h.logger.Error("read back distribution record", zap.Uint64("distribution_id", id), zap.Error(err))
		c.JSON(http.StatusCreated, gin.H{"distribution_id": id})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"distribution_id": id, "record": rec})
}

// ConfirmDelivery handles POST /distributions/:id/confirm — marks a
// distribution delivered. Only the distributor who recorded it may confirm,
// and only once.
func (h *DistributionHandler) ConfirmDelivery(c *gin.Context) {
	id, err := parseRecordID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	caller := callerIdentity(c)
	if caller == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	if err := h.ledger.ConfirmDelivery(c.Request.Context(), caller, id); err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution_id": id, "delivered": true})
}

// GetDistribution handles GET /distributions/:id — returns a single
// distribution record.
func (h *DistributionHandler) GetDistribution(c *gin.Context) {
	id, err := parseRecordID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	rec, err := h.ledger.Distribution(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// DeliveryStatus handles GET /distributions/:id/status — returns just the
// delivered flag.
func (h *DistributionHandler) DeliveryStatus(c *gin.Context) {
	id, err := parseRecordID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	delivered, err := h.ledger.DeliveryStatus(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution_id": id, "delivered": delivered})
}

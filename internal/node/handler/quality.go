package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aquatrace/aquatrace/internal/identity"
	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QualityHandler handles HTTP requests for the quality side of the ledger.
type QualityHandler struct {
	ledger *waterledger.Ledger
	tokens *identity.TokenIssuer // nil = auth disabled, caller from X-Aqua-Caller
	logger *zap.Logger
}

// NewQualityHandler creates a new QualityHandler. tokens may be nil to
// disable caller authentication on mutating routes.
func NewQualityHandler(ledger *waterledger.Ledger, tokens *identity.TokenIssuer, logger *zap.Logger) *QualityHandler {
	return &QualityHandler{ledger: ledger, tokens: tokens, logger: logger}
}

// Register registers all quality routes on the given router group.
func (h *QualityHandler) Register(rg *gin.RouterGroup) {
	quality := rg.Group("/quality")
	{
		quality.POST("", requireIdentity(h.tokens), h.RecordQuality)
		quality.GET("/history", h.History)
		quality.GET("/latest", h.LatestSafety)
		quality.GET("/:id", h.GetQuality)
	}
}

// requireIdentity returns the RequireIdentity middleware when caller auth is
// configured, or a no-op middleware for development/open mode.
func requireIdentity(tokens *identity.TokenIssuer) gin.HandlerFunc {
	if tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return identity.RequireIdentity(tokens)
}

// callerIdentity resolves the identity performing a mutating request. With
// auth enabled it comes from the verified token; in open mode the
// X-Aqua-Caller header stands in so role semantics stay testable.
func callerIdentity(c *gin.Context) string {
	if caller := identity.CallerFromCtx(c); caller != "" {
		return caller
	}
	return strings.TrimSpace(c.GetHeader("X-Aqua-Caller"))
}

// recordQualityRequest is the body for POST /quality. Measurements use the
// ledger's fixed-point conventions: ph x100, temperature x10.
type recordQualityRequest struct {
	Location    string `json:"location" binding:"required"`
	PH          int64  `json:"ph"`
	TDS         int64  `json:"tds"`
	Turbidity   int64  `json:"turbidity"`
	Temperature int64  `json:"temperature"`
}

// RecordQuality handles POST /quality — appends a measurement to the ledger.
func (h *QualityHandler) RecordQuality(c *gin.Context) {
	var req recordQualityRequest
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
	id, err := h.ledger.RecordQuality(ctx, caller, req.Location, req.PH, req.TDS, req.Turbidity, req.Temperature)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}

	rec, err := h.ledger.Quality(ctx, id)
	if err != nil {
		h.logger.Error("read back quality record", zap.Uint64("quality_id", id), zap.Error(err))
		c.JSON(http.StatusCreated, gin.H{"quality_id": id})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"quality_id": id, "is_safe": rec.IsSafe, "record": rec})
}

// GetQuality handles GET /quality/:id — returns a single quality record.
func (h *QualityHandler) GetQuality(c *gin.Context) {
	id, err := parseRecordID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	rec, err := h.ledger.Quality(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// History handles GET /quality/history?location= — returns every quality
// record ID for a location, oldest first. Unknown locations yield an empty
// history, not an error.
func (h *QualityHandler) History(c *gin.Context) {
	location := strings.TrimSpace(c.Query("location"))
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location query parameter required"})
		return
	}

	ids, err := h.ledger.HistoryAt(c.Request.Context(), location)
	if err != nil {
		h.logger.Error("location history", zap.String("location", location), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	c.JSON(http.StatusOK, gin.H{"location": location, "quality_ids": ids, "count": len(ids)})
}

// LatestSafety handles GET /quality/latest?location= — returns the stored
// verdict of the most recent record for a location. known=false means the
// location has no records yet.
func (h *QualityHandler) LatestSafety(c *gin.Context) {
	location := strings.TrimSpace(c.Query("location"))
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location query parameter required"})
		return
	}

	isSafe, id, err := h.ledger.LatestSafetyAt(c.Request.Context(), location)
	if err != nil {
		h.logger.Error("latest safety", zap.String("location", location), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read latest safety"})
		return
	}
	if id == 0 {
		c.JSON(http.StatusOK, gin.H{"location": location, "known": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": location, "known": true, "is_safe": isSafe, "quality_id": id})
}

// parseRecordID parses a ledger record ID from a path segment. ID 0 parses
// fine; it is reserved in the ledger and resolves to nothing, which comes
// back as a 404 like any other unknown ID.
func parseRecordID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

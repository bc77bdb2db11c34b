package handler

import (
	"net/http"
	"time"

	"github.com/aquatrace/aquatrace/internal/audit"
	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LedgerHandler serves ledger-wide read endpoints: the overview and the
// integrity audit result.
type LedgerHandler struct {
	ledger  *waterledger.Ledger
	auditor *audit.Auditor // nil = no background auditor running
	logger  *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler. auditor may be nil when the
// node runs without a background integrity auditor.
func NewLedgerHandler(ledger *waterledger.Ledger, auditor *audit.Auditor, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, auditor: auditor, logger: logger}
}

// Register registers ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	ledger := rg.Group("/ledger")
	{
		ledger.GET("/overview", h.Overview)
		ledger.GET("/audit", h.AuditResult)
	}
}

// Overview handles GET /ledger/overview — returns the owner and the two
// record counts.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	owner, err := h.ledger.Owner(ctx)
	if err != nil {
		h.logger.Error("read owner", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	qualityCount, err := h.ledger.QualityCount(ctx)
	if err != nil {
		h.logger.Error("count quality records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	distributionCount, err := h.ledger.DistributionCount(ctx)
	if err != nil {
		h.logger.Error("count distribution records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":              owner,
		"quality_count":      qualityCount,
		"distribution_count": distributionCount,
	})
}

// AuditResult handles GET /ledger/audit — returns the outcome of the most
// recent background integrity pass.
func (h *LedgerHandler) AuditResult(c *gin.Context) {
	if h.auditor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "integrity auditor not running"})
		return
	}

	lastRun, faults := h.auditor.LastResult()
	if lastRun.IsZero() {
		c.JSON(http.StatusOK, gin.H{"audited": false})
		return
	}
	if faults == nil {
		faults = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"audited": true,
		"run_at":  lastRun.UTC().Format(time.RFC3339),
		"clean":   len(faults) == 0,
		"faults":  faults,
	})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/aquatrace/aquatrace/internal/waterledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error kinds carried in rejection bodies. Clients branch on these rather
// than parsing messages.
const (
	kindUnauthorized     = "unauthorized"
	kindInvalidParameter = "invalid_parameter"
	kindInvalidReference = "invalid_reference"
	kindUnsafeSource     = "unsafe_source"
	kindAlreadyConfirmed = "already_confirmed"
)

// respondLedgerError translates a ledger error into an HTTP response.
// Each of the ledger's five error kinds has a fixed status code; anything
// else is an internal failure and is logged rather than leaked.
func respondLedgerError(c *gin.Context, logger *zap.Logger, err error) {
	var paramErr *waterledger.ErrInvalidParameter
	switch {
	case errors.Is(err, waterledger.ErrUnauthorized):
		recordRejection(kindUnauthorized)
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "kind": kindUnauthorized})
	case errors.As(err, &paramErr):
		recordRejection(kindInvalidParameter)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": kindInvalidParameter, "field": paramErr.Field})
	case errors.Is(err, waterledger.ErrInvalidReference):
		recordRejection(kindInvalidReference)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": kindInvalidReference})
	case errors.Is(err, waterledger.ErrUnsafeSource):
		recordRejection(kindUnsafeSource)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": kindUnsafeSource})
	case errors.Is(err, waterledger.ErrAlreadyConfirmed):
		recordRejection(kindAlreadyConfirmed)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": kindAlreadyConfirmed})
	default:
		logger.Error("ledger operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

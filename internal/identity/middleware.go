package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxCallerClaims   = "aqua_caller_claims"
	ctxOperatorClaims = "aqua_operator_claims"
)

// RequireIdentity returns a Gin middleware that enforces a valid Bearer
// caller token.
//
// On success it injects the *CallerClaims into the context under the
// "aqua_caller_claims" key. Handlers read the caller with CallerFromCtx
// and pass it to the ledger, which performs the actual role checks.
func RequireIdentity(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxCallerClaims, claims)
		c.Next()
	}
}

// CallerFromCtx retrieves the authenticated caller identity injected by
// RequireIdentity. Returns "" if no caller token is present.
func CallerFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	if claims == nil {
		return ""
	}
	return claims.Identity
}

// RequireOperator returns a Gin middleware that enforces a valid operator
// session Bearer token.
//
// On success it injects the *OperatorClaims into the context under the
// "aqua_operator_claims" key.
func RequireOperator(tokens *OperatorTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer operator token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid operator token: " + err.Error(),
			})
			return
		}

		c.Set(ctxOperatorClaims, claims)
		c.Next()
	}
}

// RequireAdmin returns a Gin middleware that enforces a valid admin Bearer token.
// Only tokens with Type="admin" and Role="admin" are accepted.
// Use this on identity enrollment and webhook management routes.
func RequireAdmin(tokens *OperatorTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "admin Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		if claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin role required",
			})
			return
		}

		c.Set(ctxOperatorClaims, claims)
		c.Next()
	}
}

// OperatorClaimsFromCtx retrieves the operator claims injected by
// RequireOperator or RequireAdmin. Returns nil if none are present.
func OperatorClaimsFromCtx(c *gin.Context) *OperatorClaims {
	v, _ := c.Get(ctxOperatorClaims)
	claims, _ := v.(*OperatorClaims)
	return claims
}

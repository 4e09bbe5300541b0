package wallet

import (
	"context"
	"net/http"
	"strings"

	"coincall-platform/internal/auth"
	"coincall-platform/internal/calls"
	"coincall-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

const headerCallType = "X-Call-Type"

// BalanceService is the minimal wallet service interface needed by middleware.
type BalanceService interface {
	GetBalance(ctx context.Context, userID string) (Balance, error)
}

// MinimumFunc returns the coins a payer must hold to start a call of the given type.
type MinimumFunc func(calls.CallType) int64

// RequireCoins blocks a call start when the caller cannot afford one billable minute.
//
// The call type is read from the X-Call-Type header, then the call_type query
// parameter, and defaults to voice. The required amount is stored in the gin
// context under "required_coins" for the handler.
//
// super_admin bypasses.
func RequireCoins(svc BalanceService, minimum MinimumFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSuperAdmin(role) {
			c.Next()
			return
		}

		userID, err := auth.UserID(c.Request.Context())
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		callType := calls.CallType(strings.ToLower(strings.TrimSpace(c.GetHeader(headerCallType))))
		if callType == "" {
			callType = calls.CallType(strings.ToLower(strings.TrimSpace(c.Query("call_type"))))
		}
		if callType == "" {
			callType = calls.CallTypeVoice
		}
		if callType != calls.CallTypeVoice && callType != calls.CallTypeVideo {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call type invalid"})
			return
		}

		required := minimum(callType)
		bal, err := svc.GetBalance(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if bal.Coins < required {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":          "insufficient coins",
				"required_coins": required,
				"balance_coins":  bal.Coins,
			})
			return
		}

		c.Set("required_coins", required)
		c.Set("call_type", string(callType))
		c.Next()
	}
}

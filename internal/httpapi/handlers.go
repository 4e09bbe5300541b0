package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"coincall-platform/internal/audit"
	"coincall-platform/internal/auth"
	"coincall-platform/internal/billing"
	"coincall-platform/internal/calls"
	"coincall-platform/internal/pricing"
	"coincall-platform/internal/rbac"
	"coincall-platform/internal/reporting"
	"coincall-platform/internal/wallet"
	"coincall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   CallService
	Wallet  WalletService
	Pricing *pricing.Service
	Reports *reporting.Service
	Audit   AdminAuditor

	// Clock is used for default report ranges. Nil means time.Now.
	Clock func() time.Time
}

type CallService interface {
	Record(ctx context.Context, raw *calls.RawTransaction) (billing.Result, error)
	History(ctx context.Context, userID string, limit int) ([]calls.Transaction, error)
	Conversation(ctx context.Context, userID, peerID string, limit int) ([]calls.Transaction, error)
}

type WalletService interface {
	GetBalance(ctx context.Context, userID string) (wallet.Balance, error)
	ListLedger(ctx context.Context, userID string, from, to time.Time, limit int) ([]wallet.WalletLedger, error)
	AdminManualCredit(ctx context.Context, userID, adminUserID, adminRole string, req wallet.AdminCreditRequest) (wallet.AdminWalletAction, wallet.WalletLedger, wallet.Balance, error)
}

type AdminAuditor interface {
	LogAdminAction(ctx context.Context, actorUserID, actorRole, targetUserID, message, metadata string) error
}

// defaultReportWindow applies when a range query omits "from".
const defaultReportWindow = 30 * 24 * time.Hour

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ClientIP stores the caller address for audit events.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair without checking credentials.
// Only routed when AUTH_DEV_LOGIN is enabled outside production.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		abortError(c, http.StatusInternalServerError, "auth not configured")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" || req.Role == "" {
		abortError(c, http.StatusBadRequest, "user_id, role required")
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		abortError(c, http.StatusBadRequest, "unknown role")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "token issuance failed")
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Call transactions ---

// IngestTransaction accepts one call transaction from the billing backend.
// Redeliveries answer 200 with outcome "duplicate". Fractional coin amounts are
// rounded while decoding; non-numeric ones are a 400.
func (h Handlers) IngestTransaction(c *gin.Context) {
	var raw calls.RawTransaction
	if err := c.ShouldBindJSON(&raw); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.Calls.Record(c.Request.Context(), &raw)
	switch {
	case errors.Is(err, billing.ErrInvalidTransaction):
		abortError(c, http.StatusBadRequest, "transactionId required")
		return
	case err != nil:
		logger.From(c.Request.Context()).Error("ingest failed", "transaction_id", raw.TransactionID, "err", err)
		abortError(c, http.StatusInternalServerError, "ingest failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListCalls(c *gin.Context) {
	userID, ok := rbac.SubjectUserID(c)
	if !ok {
		abortError(c, http.StatusForbidden, "forbidden")
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	txs, err := h.Calls.History(c.Request.Context(), userID, limit)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "transactions": emptyIfNil(txs)})
}

func (h Handlers) ListConversation(c *gin.Context) {
	userID, ok := rbac.SubjectUserID(c)
	if !ok {
		abortError(c, http.StatusForbidden, "forbidden")
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	peerID := c.Param("peer_id")
	txs, err := h.Calls.Conversation(c.Request.Context(), userID, peerID, limit)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "peer_id": peerID, "transactions": emptyIfNil(txs)})
}

// Precheck runs behind wallet.RequireCoins; reaching it means the caller can
// afford the first billable minute.
func (h Handlers) Precheck(c *gin.Context) {
	callType := calls.CallType(c.GetString("call_type"))
	if callType == "" {
		// super_admin skips RequireCoins.
		callType = calls.CallType(c.DefaultQuery("call_type", string(calls.CallTypeVoice)))
	}

	out := gin.H{"ok": true, "call_type": callType}
	if v, ok := c.Get("required_coins"); ok {
		out["required_coins"] = v
	}

	if h.Pricing != nil {
		secs, err := queryInt(c, "duration_seconds")
		if err != nil {
			abortError(c, http.StatusBadRequest, "invalid duration_seconds")
			return
		}
		if secs > 0 {
			est, err := h.Pricing.EstimateCall(callType, secs)
			if err != nil {
				abortError(c, http.StatusBadRequest, "invalid estimate request")
				return
			}
			out["estimate"] = est
		}
	}
	c.JSON(http.StatusOK, out)
}

// --- Wallet ---

func (h Handlers) GetWalletBalance(c *gin.Context) {
	userID, ok := rbac.SubjectUserID(c)
	if !ok {
		abortError(c, http.StatusForbidden, "forbidden")
		return
	}
	bal, err := h.Wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h Handlers) ListWalletLedger(c *gin.Context) {
	userID, ok := rbac.SubjectUserID(c)
	if !ok {
		abortError(c, http.StatusForbidden, "forbidden")
		return
	}
	rng, err := h.timeRange(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	entries, err := h.Wallet.ListLedger(c.Request.Context(), userID, rng.From, rng.To, limit)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "range": rng, "entries": emptyIfNil(entries)})
}

type adminManualCreditRequest struct {
	UserID         string `json:"user_id"`
	Coins          int64  `json:"coins"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}

// AdminManualCredit performs an admin-only wallet credit.
// RBAC: admin or super_admin.
func (h Handlers) AdminManualCredit(c *gin.Context) {
	ctx := c.Request.Context()
	adminUserID, _ := auth.UserID(ctx)
	adminRole, _ := auth.Role(ctx)

	var req adminManualCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" {
		abortError(c, http.StatusBadRequest, "user_id required")
		return
	}

	action, entry, bal, err := h.Wallet.AdminManualCredit(ctx, req.UserID, adminUserID, adminRole, wallet.AdminCreditRequest{
		Coins:          req.Coins,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}

	if h.Audit != nil {
		msg := "manual credit of " + strconv.FormatInt(req.Coins, 10) + " coins: " + req.Reason
		if err := h.Audit.LogAdminAction(ctx, adminUserID, adminRole, req.UserID, msg, req.Metadata); err != nil {
			logger.From(ctx).Warn("audit admin action failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"action": action, "entry": entry, "balance": bal})
}

// --- Reports ---

func (h Handlers) CallsReport(c *gin.Context) {
	userID, ok := rbac.SubjectUserID(c)
	if !ok {
		abortError(c, http.StatusForbidden, "forbidden")
		return
	}
	rng, err := h.timeRange(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{UserID: userID, Range: rng})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendReport(c *gin.Context) {
	userID, ok := rbac.SubjectUserID(c)
	if !ok {
		abortError(c, http.StatusForbidden, "forbidden")
		return
	}
	rng, err := h.timeRange(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{UserID: userID, Range: rng})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

// serviceError maps service sentinels onto status codes.
func (h Handlers) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidQuery),
		errors.Is(err, wallet.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		abortError(c, http.StatusBadRequest, "invalid request")
	case errors.Is(err, wallet.ErrNotFound):
		abortError(c, http.StatusNotFound, "not found")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		abortError(c, http.StatusPaymentRequired, "insufficient coins")
	default:
		logger.From(c.Request.Context()).Error("request failed", "err", err)
		abortError(c, http.StatusInternalServerError, "internal error")
	}
}

var errInvalidRange = errors.New("from/to must be RFC3339 with from before to")

// timeRange reads from/to (RFC3339). to defaults to now, from to 30 days before to.
func (h Handlers) timeRange(c *gin.Context) (reporting.TimeRange, error) {
	to := h.now().UTC()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, errInvalidRange
		}
		to = t.UTC()
	}
	from := to.Add(-defaultReportWindow)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, errInvalidRange
		}
		from = t.UTC()
	}
	if !to.After(from) {
		return reporting.TimeRange{}, errInvalidRange
	}
	return reporting.TimeRange{From: from, To: to}, nil
}

// queryInt returns 0 when the parameter is absent.
func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

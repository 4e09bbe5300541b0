package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coincall-platform/internal/audit"
	"coincall-platform/internal/auth"
	"coincall-platform/internal/billing"
	"coincall-platform/internal/calls"
	"coincall-platform/internal/pricing"
	"coincall-platform/internal/rbac"
	"coincall-platform/internal/reporting"
	"coincall-platform/internal/wallet"

	"github.com/gin-gonic/gin"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCalls struct {
	result  billing.Result
	err     error
	history []calls.Transaction
	lastLim int
	lastRaw *calls.RawTransaction
}

func (f *fakeCalls) Record(ctx context.Context, raw *calls.RawTransaction) (billing.Result, error) {
	f.lastRaw = raw
	if raw.TransactionID == "" {
		return billing.Result{}, billing.ErrInvalidTransaction
	}
	return f.result, f.err
}

func (f *fakeCalls) History(ctx context.Context, userID string, limit int) ([]calls.Transaction, error) {
	f.lastLim = limit
	return f.history, nil
}

func (f *fakeCalls) Conversation(ctx context.Context, userID, peerID string, limit int) ([]calls.Transaction, error) {
	if userID == peerID {
		return nil, billing.ErrInvalidQuery
	}
	return f.history, nil
}

type fakeWallet struct {
	balances  map[string]int64
	creditErr error
	credited  []string
}

func (f *fakeWallet) GetBalance(ctx context.Context, userID string) (wallet.Balance, error) {
	return wallet.Balance{UserID: userID, Coins: f.balances[userID]}, nil
}

func (f *fakeWallet) ListLedger(ctx context.Context, userID string, from, to time.Time, limit int) ([]wallet.WalletLedger, error) {
	return nil, nil
}

func (f *fakeWallet) AdminManualCredit(ctx context.Context, userID, adminUserID, adminRole string, req wallet.AdminCreditRequest) (wallet.AdminWalletAction, wallet.WalletLedger, wallet.Balance, error) {
	if f.creditErr != nil {
		return wallet.AdminWalletAction{}, wallet.WalletLedger{}, wallet.Balance{}, f.creditErr
	}
	f.credited = append(f.credited, userID)
	f.balances[userID] += req.Coins
	return wallet.AdminWalletAction{UserID: userID, AdminUserID: adminUserID},
		wallet.WalletLedger{UserID: userID, Coins: req.Coins},
		wallet.Balance{UserID: userID, Coins: f.balances[userID]}, nil
}

type testEnv struct {
	router *gin.Engine
	calls  *fakeCalls
	wallet *fakeWallet
	audit  *audit.MemoryRepo
}

func newEnv(t *testing.T, userID, role string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		calls:  &fakeCalls{},
		wallet: &fakeWallet{balances: map[string]int64{}},
		audit:  audit.NewMemoryRepo(),
	}
	repo := reporting.NewMemoryRepo()
	h := Handlers{
		Calls:   env.calls,
		Wallet:  env.wallet,
		Pricing: pricing.NewService(pricing.DefaultRateCard),
		Reports: reporting.NewService(repo, repo),
		Audit:   audit.NewService(env.audit),
		Clock:   func() time.Time { return fixedNow },
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, ClientIP())
	r.POST("/ingest", rbac.RequireAnyRole(rbac.RoleBilling), h.IngestTransaction)
	r.GET("/calls", h.ListCalls)
	r.GET("/calls/with/:peer_id", h.ListConversation)
	r.POST("/precheck", wallet.RequireCoins(env.wallet, h.Pricing.MinimumToStart), h.Precheck)
	r.GET("/balance", h.GetWalletBalance)
	r.GET("/ledger", h.ListWalletLedger)
	r.GET("/reports/calls", h.CallsReport)
	r.POST("/admin/credit", rbac.RequireAnyRole(rbac.RoleAdmin), h.AdminManualCredit)
	env.router = r
	return env
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestIngestTransaction(t *testing.T) {
	env := newEnv(t, "billing-svc", rbac.RoleBilling)
	env.calls.result = billing.Result{Outcome: billing.OutcomeAccepted}

	w := env.do(http.MethodPost, "/ingest", map[string]any{"transactionId": "tx-1", "billedCoins": 20})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res billing.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Outcome != billing.OutcomeAccepted {
		t.Fatalf("expected accepted, got %q", res.Outcome)
	}

	if w := env.do(http.MethodPost, "/ingest", map[string]any{"callId": "c"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", w.Code)
	}

	env.calls.err = errors.New("wallet: db timeout")
	if w := env.do(http.MethodPost, "/ingest", map[string]any{"transactionId": "tx-2"}); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on sink failure, got %d", w.Code)
	}
}

func TestIngestTransaction_FractionalCoinsAreRounded(t *testing.T) {
	env := newEnv(t, "billing-svc", rbac.RoleBilling)
	env.calls.result = billing.Result{Outcome: billing.OutcomeAccepted}

	w := env.do(http.MethodPost, "/ingest", map[string]any{
		"transactionId":   "tx-frac",
		"billedCoins":     12.5,
		"receiverShare":   4.4,
		"durationSeconds": 30.5,
		"distribution":    map[string]any{"adminShare": 7.5},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for fractional amounts, got %d: %s", w.Code, w.Body.String())
	}
	raw := env.calls.lastRaw
	if raw == nil || raw.BilledCoins != 13 || raw.ReceiverShare != 4 || raw.DurationSeconds != 31 {
		t.Fatalf("unexpected decoded amounts: %+v", raw)
	}
	if raw.Distribution == nil || raw.Distribution.AdminShare != 8 {
		t.Fatalf("unexpected distribution: %+v", raw.Distribution)
	}

	if w := env.do(http.MethodPost, "/ingest", map[string]any{"transactionId": "tx-bad", "billedCoins": "lots"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric amount, got %d", w.Code)
	}
}

func TestIngestTransaction_ForbiddenForUsers(t *testing.T) {
	env := newEnv(t, "u1", rbac.RoleUser)
	if w := env.do(http.MethodPost, "/ingest", map[string]any{"transactionId": "tx-1"}); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestListCalls_SubjectRules(t *testing.T) {
	env := newEnv(t, "u1", rbac.RoleUser)

	w := env.do(http.MethodGet, "/calls?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.calls.lastLim != 5 {
		t.Fatalf("expected limit 5, got %d", env.calls.lastLim)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"transactions":[]`)) {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}

	if w := env.do(http.MethodGet, "/calls?user_id=u2", nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/calls?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/calls/with/u1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self conversation, got %d", w.Code)
	}
}

func TestListCalls_AdminMayViewOthers(t *testing.T) {
	env := newEnv(t, "ops", rbac.RoleAdmin)
	if w := env.do(http.MethodGet, "/calls?user_id=u2", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestPrecheck(t *testing.T) {
	env := newEnv(t, "u1", rbac.RoleUser)

	if w := env.do(http.MethodPost, "/precheck?call_type=video", nil); w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 on empty wallet, got %d", w.Code)
	}

	env.wallet.balances["u1"] = 100
	w := env.do(http.MethodPost, "/precheck?call_type=video&duration_seconds=90", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		RequiredCoins int64            `json:"required_coins"`
		Estimate      pricing.Estimate `json:"estimate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RequiredCoins != 40 || out.Estimate.TotalCoins != 80 {
		t.Fatalf("unexpected precheck: %+v", out)
	}
}

func TestListWalletLedger_RangeValidation(t *testing.T) {
	env := newEnv(t, "u1", rbac.RoleUser)

	if w := env.do(http.MethodGet, "/ledger", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with default range, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/ledger?from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}
	bad := "/ledger?from=2025-03-02T00:00:00Z&to=2025-03-01T00:00:00Z"
	if w := env.do(http.MethodGet, bad, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", w.Code)
	}
}

func TestCallsReport(t *testing.T) {
	env := newEnv(t, "u1", rbac.RoleUser)
	w := env.do(http.MethodGet, "/reports/calls", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out reporting.CallsSummary
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != "u1" || !out.Range.To.Equal(fixedNow) {
		t.Fatalf("unexpected summary: %+v", out)
	}
}

func TestAdminManualCredit_WritesAudit(t *testing.T) {
	env := newEnv(t, "ops", rbac.RoleAdmin)

	w := env.do(http.MethodPost, "/admin/credit", map[string]any{
		"user_id":         "u1",
		"coins":           50,
		"reason":          "refund",
		"idempotency_key": "k1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.wallet.balances["u1"] != 50 {
		t.Fatalf("expected balance 50, got %d", env.wallet.balances["u1"])
	}
	events := env.audit.EventsOfType(audit.EventTypeAdminAction)
	if len(events) != 1 || events[0].UserID != "u1" || events[0].ActorUserID != "ops" {
		t.Fatalf("unexpected audit events: %+v", events)
	}
	if events[0].IPAddress == "" {
		t.Fatalf("expected client ip on audit event")
	}

	env.wallet.creditErr = wallet.ErrInvalidArgument
	if w := env.do(http.MethodPost, "/admin/credit", map[string]any{"user_id": "u1"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/admin/credit", map[string]any{"coins": 5}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_id, got %d", w.Code)
	}
}

func TestAdminManualCredit_ForbiddenForUsers(t *testing.T) {
	env := newEnv(t, "u1", rbac.RoleUser)
	if w := env.do(http.MethodPost, "/admin/credit", map[string]any{"user_id": "u1"}); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"coincall-platform/internal/callevent"
	"coincall-platform/internal/calls"
	"coincall-platform/pkg/utils"

	"github.com/google/uuid"
)

// Service provides coin wallet operations.
//
// Coin invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only (immutable)
// - All coin operations are executed in a DB transaction
//
// Balance strategy:
//   - Balance is stored in a projection table (wallet_balances) updated atomically
//     alongside ledger inserts.
//   - Wallets are created lazily on the first posting for a user.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

type CreditRequest struct {
	Coins          int64  `json:"coins"`
	ExternalRef    string `json:"external_ref,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}

type DebitRequest struct {
	Coins          int64  `json:"coins"`
	ExternalRef    string `json:"external_ref,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`

	// AllowOverdraft posts the debit even when the balance is short.
	// Used for settled calls, where the minutes were already consumed.
	AllowOverdraft bool `json:"-"`
}

type AdminCreditRequest struct {
	Coins          int64  `json:"coins"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
	Metadata       string `json:"metadata,omitempty"`
}

// CallPosting is what ApplyCallTransaction wrote. Nil fields were skipped.
type CallPosting struct {
	Debit           *WalletLedger `json:"debit,omitempty"`
	Credit          *WalletLedger `json:"credit,omitempty"`
	PayerBalance    *Balance      `json:"payer_balance,omitempty"`
	ReceiverBalance *Balance      `json:"receiver_balance,omitempty"`
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// callPostingAttempts bounds reruns of a call posting after a Postgres deadlock.
const callPostingAttempts = 3

// GetBalance returns the user's coin balance. Users without a wallet have zero coins.
func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	b, err := getBalance(ctx, s.db, userID, false)
	if errors.Is(err, ErrNotFound) {
		return Balance{UserID: userID}, nil
	}
	return b, err
}

// ListLedger returns the user's ledger entries in [from, to), newest first.
func (s *Service) ListLedger(ctx context.Context, userID string, from, to time.Time, limit int) ([]WalletLedger, error) {
	if userID == "" || !to.After(from) {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return listLedger(ctx, s.db, userID, from, to, limit)
}

func (s *Service) Credit(ctx context.Context, userID string, req CreditRequest) (WalletLedger, Balance, error) {
	if err := validateCoinReq(userID, req.Coins, req.IdempotencyKey); err != nil {
		return WalletLedger{}, Balance{}, err
	}

	now := s.clock().UTC()
	var outLedger WalletLedger
	var outBal Balance

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		e, b, _, err := post(ctx, tx, posting{
			userID:      userID,
			typ:         LedgerEntryTypeCredit,
			coins:       req.Coins,
			externalRef: req.ExternalRef,
			key:         req.IdempotencyKey,
			metadata:    req.Metadata,
		}, now)
		outLedger, outBal = e, b
		return err
	})

	return outLedger, outBal, err
}

func (s *Service) Debit(ctx context.Context, userID string, req DebitRequest) (WalletLedger, Balance, error) {
	if err := validateCoinReq(userID, req.Coins, req.IdempotencyKey); err != nil {
		return WalletLedger{}, Balance{}, err
	}

	now := s.clock().UTC()
	var outLedger WalletLedger
	var outBal Balance

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		e, b, _, err := post(ctx, tx, posting{
			userID:         userID,
			typ:            LedgerEntryTypeDebit,
			coins:          req.Coins,
			externalRef:    req.ExternalRef,
			key:            req.IdempotencyKey,
			metadata:       req.Metadata,
			allowOverdraft: req.AllowOverdraft,
		}, now)
		outLedger, outBal = e, b
		return err
	})

	return outLedger, outBal, err
}

// ApplyCallTransaction posts the coin movements of one settled call transaction:
// a debit of BilledCoins on the payer and a credit of ReceiverShare on the other
// participant. Transactions that did not move coins (failed billing, missed,
// cancelled, unbilled pending) post nothing. Keys are derived from the
// transaction id, so replays are no-ops.
func (s *Service) ApplyCallTransaction(ctx context.Context, t calls.Transaction) (CallPosting, error) {
	plan, err := planCallPostings(t)
	if err != nil {
		return CallPosting{}, err
	}
	var out CallPosting
	if len(plan) == 0 {
		return out, nil
	}

	now := s.clock().UTC()
	err = utils.WithRetryTx(ctx, s.db, &sql.TxOptions{}, callPostingAttempts, func(ctx context.Context, tx *sql.Tx) error {
		out = CallPosting{}
		for _, p := range plan {
			e, b, _, err := post(ctx, tx, p, now)
			if err != nil {
				return fmt.Errorf("post %s for %s: %w", p.typ, p.userID, err)
			}
			if p.typ == LedgerEntryTypeDebit {
				out.Debit, out.PayerBalance = &e, &b
			} else {
				out.Credit, out.ReceiverBalance = &e, &b
			}
		}
		return nil
	})
	return out, err
}

// planCallPostings returns the postings for t ordered by user id, so two
// transactions touching the same pair of wallets lock them in the same order.
func planCallPostings(t calls.Transaction) ([]posting, error) {
	if t.TransactionID == "" {
		return nil, ErrInvalidArgument
	}
	if !callevent.MovesCoins(t) {
		return nil, nil
	}
	payer := t.Payer()
	if payer == "" {
		payer = t.Participants.InitiatorID
	}
	receiver := t.Participants.Peer(payer)

	ref := CallRefPrefix + t.TransactionID
	var plan []posting
	if t.BilledCoins > 0 {
		if payer == "" {
			return nil, ErrInvalidArgument
		}
		plan = append(plan, posting{
			userID:         payer,
			typ:            LedgerEntryTypeDebit,
			coins:          t.BilledCoins,
			externalRef:    ref,
			key:            t.TransactionID + ":debit",
			allowOverdraft: true,
		})
	}
	if t.ReceiverShare > 0 && receiver != "" && receiver != payer {
		plan = append(plan, posting{
			userID:      receiver,
			typ:         LedgerEntryTypeCredit,
			coins:       t.ReceiverShare,
			externalRef: ref,
			key:         t.TransactionID + ":credit",
		})
	}
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].userID < plan[j].userID })
	return plan, nil
}

func (s *Service) AdminManualCredit(ctx context.Context, userID, adminUserID, adminRole string, req AdminCreditRequest) (AdminWalletAction, WalletLedger, Balance, error) {
	if adminUserID == "" || adminRole == "" {
		return AdminWalletAction{}, WalletLedger{}, Balance{}, ErrInvalidArgument
	}
	if req.Reason == "" {
		return AdminWalletAction{}, WalletLedger{}, Balance{}, ErrInvalidArgument
	}
	if err := validateCoinReq(userID, req.Coins, req.IdempotencyKey); err != nil {
		return AdminWalletAction{}, WalletLedger{}, Balance{}, err
	}

	now := s.clock().UTC()
	actionID := uuid.NewString()

	var outAction AdminWalletAction
	var outLedger WalletLedger
	var outBal Balance

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		entry, b, replayed, err := post(ctx, tx, posting{
			userID:      userID,
			typ:         LedgerEntryTypeCredit,
			coins:       req.Coins,
			externalRef: AdminManualCreditRef,
			key:         req.IdempotencyKey,
			metadata:    req.Metadata,
		}, now)
		if err != nil {
			return err
		}
		outLedger, outBal = entry, b

		if replayed {
			// Best-effort: look up admin action by related_ledger_id.
			act, ok, err := findAdminActionByLedger(ctx, tx, userID, entry.ID)
			if err != nil {
				return err
			}
			if ok {
				outAction = act
			}
			return nil
		}

		action := AdminWalletAction{
			ID:              actionID,
			UserID:          userID,
			AdminUserID:     adminUserID,
			AdminRole:       adminRole,
			Action:          AdminWalletActionTypeAdjustBalance,
			Reason:          req.Reason,
			Coins:           req.Coins,
			RelatedLedgerID: entry.ID,
			Metadata:        req.Metadata,
			CreatedAt:       now,
		}
		if err := insertAdminAction(ctx, tx, action); err != nil {
			return err
		}
		outAction = action
		return nil
	})

	return outAction, outLedger, outBal, err
}

type posting struct {
	userID         string
	typ            LedgerEntryType
	coins          int64 // always positive; the sign follows typ
	externalRef    string
	key            string
	metadata       string
	allowOverdraft bool
}

// post writes one ledger entry and its projection delta inside tx.
// replayed is true when the idempotency key was already used; the stored entry is returned.
func post(ctx context.Context, tx *sql.Tx, p posting, now time.Time) (WalletLedger, Balance, bool, error) {
	if err := ensureWallet(ctx, tx, p.userID, now); err != nil {
		return WalletLedger{}, Balance{}, false, err
	}
	if _, err := lockWallet(ctx, tx, p.userID); err != nil {
		return WalletLedger{}, Balance{}, false, err
	}

	if existing, ok, err := findLedgerByIdempotency(ctx, tx, p.userID, p.key); err != nil {
		return WalletLedger{}, Balance{}, false, err
	} else if ok {
		b, err := getBalance(ctx, tx, p.userID, false)
		if errors.Is(err, ErrNotFound) {
			b, err = Balance{UserID: p.userID}, nil
		}
		return existing, b, true, err
	}

	delta := p.coins
	if p.typ == LedgerEntryTypeDebit {
		delta = -p.coins
		if !p.allowOverdraft {
			b, err := getBalance(ctx, tx, p.userID, true)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return WalletLedger{}, Balance{}, false, err
			}
			if b.Coins < p.coins {
				return WalletLedger{}, Balance{}, false, ErrInsufficientFunds
			}
		}
	}

	entry := WalletLedger{
		ID:             uuid.NewString(),
		UserID:         p.userID,
		Type:           p.typ,
		Coins:          delta,
		ExternalRef:    p.externalRef,
		IdempotencyKey: p.key,
		Metadata:       p.metadata,
		CreatedAt:      now,
	}
	if err := insertLedger(ctx, tx, entry); err != nil {
		return WalletLedger{}, Balance{}, false, err
	}
	b, err := applyBalanceDelta(ctx, tx, p.userID, delta, now)
	if err != nil {
		return WalletLedger{}, Balance{}, false, err
	}
	return entry, b, false, nil
}

func validateCoinReq(userID string, coins int64, idempotencyKey string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	if idempotencyKey == "" {
		return ErrInvalidArgument
	}
	if coins <= 0 {
		return ErrInvalidArgument
	}
	return nil
}

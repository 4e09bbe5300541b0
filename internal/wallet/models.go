package wallet

import "time"

// Wallet is a user's coin wallet.
// Invariant: the balance is derived from immutable ledger entries.
// No code should ever mutate a balance without writing a corresponding ledger entry.
type Wallet struct {
	UserID string       `json:"user_id" db:"user_id"`
	Status WalletStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "active"
	WalletStatusDisabled WalletStatus = "disabled"
)

// WalletLedger is an immutable append-only entry.
// Money invariant: any balance change MUST have a corresponding ledger entry.
type WalletLedger struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Type LedgerEntryType `json:"type" db:"type"`

	// Coins is signed. Credits are positive, debits are negative.
	Coins int64 `json:"coins" db:"coins"`

	// ExternalRef is optional: call:<transactionId>, admin_manual_credit, purchase id, etc.
	ExternalRef string `json:"external_ref,omitempty" db:"external_ref"`

	// IdempotencyKey is unique per wallet and required for safe retries.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	// Metadata is optional JSON (JSONB in Postgres).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type LedgerEntryType string

const (
	LedgerEntryTypeCredit LedgerEntryType = "credit"
	LedgerEntryTypeDebit  LedgerEntryType = "debit"
)

// Prefix of ExternalRef on entries posted from call transactions.
const CallRefPrefix = "call:"

// AdminManualCreditRef marks ledger entries created by AdminManualCredit.
const AdminManualCreditRef = "admin_manual_credit"

// AdminWalletAction tracks privileged/manual actions performed by admins.
// Any admin mutation of coins also creates a WalletLedger entry.
type AdminWalletAction struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	AdminUserID string `json:"admin_user_id" db:"admin_user_id"`
	AdminRole   string `json:"admin_role" db:"admin_role"`

	Action AdminWalletActionType `json:"action" db:"action"`
	Reason string                `json:"reason,omitempty" db:"reason"`

	Coins int64 `json:"coins" db:"coins"`

	RelatedLedgerID string `json:"related_ledger_id,omitempty" db:"related_ledger_id"`
	Metadata        string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type AdminWalletActionType string

const (
	AdminWalletActionTypeAdjustBalance AdminWalletActionType = "adjust_balance"
)

type Balance struct {
	UserID    string    `json:"user_id"`
	Coins     int64     `json:"coins"`
	UpdatedAt time.Time `json:"updated_at"`
}

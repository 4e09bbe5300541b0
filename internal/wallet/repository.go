package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the tables from pkg/utils/migrations exist:
// - wallets (one row per user)
// - wallet_ledger (immutable append-only)
// - wallet_balances (projection)
// - admin_wallet_actions
//
// Idempotency is enforced by UNIQUE (user_id, idempotency_key) on wallet_ledger.

func ensureWallet(ctx context.Context, tx *sql.Tx, userID string, now time.Time) error {
	const q = `
INSERT INTO wallets (user_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (user_id) DO NOTHING
`
	_, err := tx.ExecContext(ctx, q, userID, WalletStatusActive, now)
	return err
}

func lockWallet(ctx context.Context, tx *sql.Tx, userID string) (Wallet, error) {
	// Lock the wallet row to serialize concurrent coin operations per user.
	const q = `
SELECT user_id, status, created_at, updated_at
FROM wallets
WHERE user_id = $1
FOR UPDATE
`
	var w Wallet
	if err := tx.QueryRowContext(ctx, q, userID).Scan(
		&w.UserID,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBalance(ctx context.Context, q queryRower, userID string, forUpdate bool) (Balance, error) {
	query := `
SELECT user_id, balance_coins, updated_at
FROM wallet_balances
WHERE user_id = $1
`
	if forUpdate {
		query += "FOR UPDATE\n"
	}
	var b Balance
	if err := q.QueryRowContext(ctx, query, userID).Scan(
		&b.UserID,
		&b.Coins,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

const ledgerColumns = `id, user_id, type, coins, external_ref, idempotency_key, COALESCE(metadata::text, ''), created_at`

func scanLedger(row interface{ Scan(...any) error }) (WalletLedger, error) {
	var e WalletLedger
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Type,
		&e.Coins,
		&e.ExternalRef,
		&e.IdempotencyKey,
		&e.Metadata,
		&e.CreatedAt,
	)
	return e, err
}

func findLedgerByIdempotency(ctx context.Context, tx *sql.Tx, userID, key string) (WalletLedger, bool, error) {
	q := `SELECT ` + ledgerColumns + `
FROM wallet_ledger
WHERE user_id = $1 AND idempotency_key = $2
LIMIT 1
`
	e, err := scanLedger(tx.QueryRowContext(ctx, q, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WalletLedger{}, false, nil
		}
		return WalletLedger{}, false, err
	}
	return e, true, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e WalletLedger) error {
	const q = `
INSERT INTO wallet_ledger (
  id, user_id, type, coins, external_ref, idempotency_key, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,NULLIF($7, '')::jsonb,$8
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.Type,
		e.Coins,
		e.ExternalRef,
		e.IdempotencyKey,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID string, delta int64, now time.Time) (Balance, error) {
	const q = `
INSERT INTO wallet_balances (user_id, balance_coins, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (user_id)
DO UPDATE SET balance_coins = wallet_balances.balance_coins + EXCLUDED.balance_coins,
              updated_at = EXCLUDED.updated_at
RETURNING user_id, balance_coins, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID, delta, now).Scan(
		&b.UserID,
		&b.Coins,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func listLedger(ctx context.Context, db *sql.DB, userID string, from, to time.Time, limit int) ([]WalletLedger, error) {
	q := `SELECT ` + ledgerColumns + `
FROM wallet_ledger
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
LIMIT $4
`
	rows, err := db.QueryContext(ctx, q, userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WalletLedger
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertAdminAction(ctx context.Context, tx *sql.Tx, a AdminWalletAction) error {
	const q = `
INSERT INTO admin_wallet_actions (
  id, user_id, admin_user_id, admin_role, action, reason,
  coins, related_ledger_id, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9, '')::jsonb,$10
)
`
	_, err := tx.ExecContext(ctx, q,
		a.ID,
		a.UserID,
		a.AdminUserID,
		a.AdminRole,
		a.Action,
		a.Reason,
		a.Coins,
		a.RelatedLedgerID,
		a.Metadata,
		a.CreatedAt,
	)
	return err
}

func findAdminActionByLedger(ctx context.Context, tx *sql.Tx, userID, ledgerID string) (AdminWalletAction, bool, error) {
	const q = `
SELECT id, user_id, admin_user_id, admin_role, action, reason,
       coins, related_ledger_id, COALESCE(metadata::text, ''), created_at
FROM admin_wallet_actions
WHERE user_id = $1 AND related_ledger_id = $2
LIMIT 1
`
	var a AdminWalletAction
	err := tx.QueryRowContext(ctx, q, userID, ledgerID).Scan(
		&a.ID,
		&a.UserID,
		&a.AdminUserID,
		&a.AdminRole,
		&a.Action,
		&a.Reason,
		&a.Coins,
		&a.RelatedLedgerID,
		&a.Metadata,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AdminWalletAction{}, false, nil
		}
		return AdminWalletAction{}, false, err
	}
	return a, true, nil
}

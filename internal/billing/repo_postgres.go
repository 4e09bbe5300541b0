package billing

import (
	"context"
	"database/sql"
	"time"

	"coincall-platform/internal/calls"
)

// PostgresRepo stores normalized transactions in call_transactions.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const txColumns = `transaction_id, call_id, call_type, initiator_id, receiver_id, payer_user_id,
  total_coins, billed_coins, receiver_share, admin_share,
  dist_female_share, dist_admin_share, dist_payer_id,
  status, duration_seconds, started_at, ended_at, occurred_at, rate_voice, rate_video`

func (r *PostgresRepo) Insert(ctx context.Context, tx calls.Transaction) (bool, error) {
	const q = `
INSERT INTO call_transactions (` + txColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (transaction_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		tx.TransactionID,
		tx.CallID,
		tx.CallType,
		tx.Participants.InitiatorID,
		tx.Participants.ReceiverID,
		tx.PayerUserID,
		tx.TotalCoins,
		tx.BilledCoins,
		tx.ReceiverShare,
		tx.AdminShare,
		tx.Distribution.FemaleShare,
		tx.Distribution.AdminShare,
		tx.Distribution.PayerID,
		tx.Status,
		tx.DurationSeconds,
		tx.StartedAt,
		tx.EndedAt,
		tx.Timestamp,
		tx.Rates.Voice,
		tx.Rates.Video,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, limit int) ([]calls.Transaction, error) {
	const q = `
SELECT ` + txColumns + `
FROM call_transactions
WHERE initiator_id = $1 OR receiver_id = $1
ORDER BY occurred_at DESC
LIMIT $2
`
	return r.query(ctx, q, userID, limit)
}

func (r *PostgresRepo) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]calls.Transaction, error) {
	const q = `
SELECT ` + txColumns + `
FROM call_transactions
WHERE (initiator_id = $1 AND receiver_id = $2) OR (initiator_id = $2 AND receiver_id = $1)
ORDER BY occurred_at DESC
LIMIT $3
`
	return r.query(ctx, q, userID, peerID, limit)
}

func (r *PostgresRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]calls.Transaction, error) {
	const q = `
SELECT ` + txColumns + `
FROM call_transactions
WHERE (initiator_id = $1 OR receiver_id = $1) AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at DESC
`
	return r.query(ctx, q, userID, from, to)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]calls.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Transaction
	for rows.Next() {
		var tx calls.Transaction
		if err := rows.Scan(
			&tx.TransactionID,
			&tx.CallID,
			&tx.CallType,
			&tx.Participants.InitiatorID,
			&tx.Participants.ReceiverID,
			&tx.PayerUserID,
			&tx.TotalCoins,
			&tx.BilledCoins,
			&tx.ReceiverShare,
			&tx.AdminShare,
			&tx.Distribution.FemaleShare,
			&tx.Distribution.AdminShare,
			&tx.Distribution.PayerID,
			&tx.Status,
			&tx.DurationSeconds,
			&tx.StartedAt,
			&tx.EndedAt,
			&tx.Timestamp,
			&tx.Rates.Voice,
			&tx.Rates.Video,
		); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

package calls

import "time"

// Normalize fills in every defaulted field of a raw transaction. Each field falls
// back independently; a later source is used only when the earlier one is zero.
//
// Normalize does not validate; callers reject nil input or a missing TransactionID first.
func Normalize(raw RawTransaction, now time.Time) Transaction {
	callType := raw.CallType
	if callType == "" {
		callType = CallTypeVoice
	}

	var dist Distribution
	if raw.Distribution != nil {
		dist = *raw.Distribution
	}

	receiverShare := firstNonZero(dist.FemaleShare, raw.ReceiverShare, raw.FemaleShare)
	adminShare := firstNonZero(dist.AdminShare, raw.AdminShare)

	if raw.Distribution == nil {
		dist = Distribution{
			FemaleShare: receiverShare,
			AdminShare:  adminShare,
			PayerID:     raw.PayerUserID,
		}
	}

	payer := raw.PayerUserID
	if payer == "" && raw.Distribution != nil {
		payer = raw.Distribution.PayerID
	}

	status := raw.Status
	if status == "" {
		status = StatusCompleted
	}

	ts := now
	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		ts = *raw.Timestamp
	}

	rates := DefaultRates
	if raw.Rates != nil {
		rates = *raw.Rates
	}

	return Transaction{
		TransactionID:   raw.TransactionID,
		CallID:          raw.CallID,
		CallType:        callType,
		Participants:    raw.Participants,
		PayerUserID:     payer,
		TotalCoins:      firstNonZero(raw.TotalCoins, raw.BilledCoins),
		BilledCoins:     firstNonZero(raw.BilledCoins, raw.TotalCoins),
		ReceiverShare:   receiverShare,
		AdminShare:      adminShare,
		Distribution:    dist,
		Status:          status,
		DurationSeconds: raw.DurationSeconds,
		StartedAt:       raw.StartedAt,
		EndedAt:         raw.EndedAt,
		Timestamp:       ts,
		Rates:           rates,
	}
}

// SharesExceedBilled reports a distribution that hands out more than was billed.
// Nothing rejects such a transaction; callers may flag it.
func (t Transaction) SharesExceedBilled() bool {
	return t.ReceiverShare+t.AdminShare > t.BilledCoins
}

func firstNonZero(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

package pricing

import (
	"errors"

	"coincall-platform/internal/calls"
)

// RateCard holds per-minute coin rates and the billing granularity.
type RateCard struct {
	VoicePerMinute int64
	VideoPerMinute int64

	// MinimumBillableSeconds is charged for any connected call shorter than it.
	MinimumBillableSeconds int
	// BillingIncrementSeconds rounds billable time up. Defaults to 60.
	BillingIncrementSeconds int
}

// DefaultRateCard matches calls.DefaultRates.
var DefaultRateCard = RateCard{
	VoicePerMinute: calls.DefaultRates.Voice,
	VideoPerMinute: calls.DefaultRates.Video,
}

// Rates returns the card in the shape attached to transactions.
func (c RateCard) Rates() calls.Rates {
	return calls.Rates{Voice: c.VoicePerMinute, Video: c.VideoPerMinute}
}

// Service computes coin costs for calls.
//
// Pure calculation: no persistence, no provider calls. The billing backend is the
// source of truth for what was actually charged; estimates are for pre-call checks
// and for flagging transactions whose billed amount looks off.
type Service struct {
	card RateCard
}

func NewService(card RateCard) *Service {
	if card.VoicePerMinute <= 0 {
		card.VoicePerMinute = DefaultRateCard.VoicePerMinute
	}
	if card.VideoPerMinute <= 0 {
		card.VideoPerMinute = DefaultRateCard.VideoPerMinute
	}
	return &Service{card: card}
}

func (s *Service) Card() RateCard { return s.card }

type Estimate struct {
	CallType        calls.CallType `json:"callType"`
	BillableSeconds int            `json:"billableSeconds"`
	BillableMinutes int            `json:"billableMinutes"`
	RatePerMinute   int64          `json:"ratePerMinute"`
	TotalCoins      int64          `json:"totalCoins"`
}

var ErrInvalidEstimateReq = errors.New("pricing: invalid estimate request")

// EstimateCall computes the coin cost of a call of the given length.
func (s *Service) EstimateCall(callType calls.CallType, durationSeconds int) (Estimate, error) {
	if callType != calls.CallTypeVoice && callType != calls.CallTypeVideo {
		return Estimate{}, ErrInvalidEstimateReq
	}
	if durationSeconds <= 0 {
		return Estimate{}, ErrInvalidEstimateReq
	}

	rate := s.card.Rates().For(callType)
	sec := billableSeconds(durationSeconds, s.card.MinimumBillableSeconds, s.card.BillingIncrementSeconds)
	mins := billableMinutesFromSeconds(sec)

	return Estimate{
		CallType:        callType,
		BillableSeconds: sec,
		BillableMinutes: mins,
		RatePerMinute:   rate,
		TotalCoins:      rate * int64(mins),
	}, nil
}

// MinimumToStart is the balance a payer needs to open a call: one billable minute.
func (s *Service) MinimumToStart(callType calls.CallType) int64 {
	est, err := s.EstimateCall(callType, 1)
	if err != nil {
		return 0
	}
	return est.TotalCoins
}

// Deviation returns billed minus expected coins for a completed transaction,
// using the rates carried on the transaction itself. ok is false when there is
// nothing to compare (no duration).
func (s *Service) Deviation(tx calls.Transaction) (delta int64, ok bool) {
	if tx.DurationSeconds <= 0 {
		return 0, false
	}
	card := s.card
	card.VoicePerMinute = tx.Rates.Voice
	card.VideoPerMinute = tx.Rates.Video
	est, err := NewService(card).EstimateCall(tx.CallType, tx.DurationSeconds)
	if err != nil {
		return 0, false
	}
	return tx.BilledCoins - est.TotalCoins, true
}

func billableSeconds(actualSec int, minSec int, incrementSec int) int {
	if actualSec < 0 {
		return 0
	}
	if minSec <= 0 {
		minSec = 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	sec := actualSec
	if sec < minSec {
		sec = minSec
	}

	q := sec / incrementSec
	if sec%incrementSec != 0 {
		q++
	}
	return q * incrementSec
}

func billableMinutesFromSeconds(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}

package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummaryRequest requests aggregated call metrics for one user.
type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

// CallsSummary buckets calls by display state, as the call list shows them.
type CallsSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	CancelledCalls int `json:"cancelled_calls"`
	FailedCalls    int `json:"failed_calls"`
	PendingCalls   int `json:"pending_calls"`

	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`
	VoiceCalls    int `json:"voice_calls"`
	VideoCalls    int `json:"video_calls"`

	TotalDurationSeconds int `json:"total_duration_seconds"`
	// AverageDurationSeconds is over completed calls only.
	AverageDurationSeconds int `json:"average_duration_seconds"`

	CoinsSpent  int64 `json:"coins_spent"`
	CoinsEarned int64 `json:"coins_earned"`
}

// SpendSummaryRequest requests aggregated coin movements.
// Spend is derived from immutable wallet ledger entries.
type SpendSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type SpendSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalDebitCoins  int64 `json:"total_debit_coins"`
	TotalCreditCoins int64 `json:"total_credit_coins"`
	NetDeltaCoins    int64 `json:"net_delta_coins"`

	CallDebitCoins   int64 `json:"call_debit_coins"`
	CallCreditCoins  int64 `json:"call_credit_coins"`
	AdminAdjustCoins int64 `json:"admin_adjust_coins"`

	Entries int `json:"entries"`
	// Truncated is set when the range held more entries than one summary reads.
	Truncated bool `json:"truncated,omitempty"`
}

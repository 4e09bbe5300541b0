package calls

import "time"

// Transaction is the normalized, server-issued record of one call billing event.
//
// Idempotency invariant: TransactionID is globally unique. Several transactions may
// reference the same CallID, each with its own TransactionID.
//
// CallType is authoritative and set once by the server for the lifetime of the call;
// nothing in this codebase derives it from other fields.
type Transaction struct {
	TransactionID string   `json:"transactionId" db:"transaction_id"`
	CallID        string   `json:"callId,omitempty" db:"call_id"`
	CallType      CallType `json:"callType" db:"call_type"`

	Participants Participants `json:"participants"`
	PayerUserID  string       `json:"payerUserId,omitempty" db:"payer_user_id"`

	// Coin accounting. ReceiverShare + AdminShare <= BilledCoins is expected
	// but not enforced here; reconciliation happens server-side.
	TotalCoins    int64        `json:"totalCoins" db:"total_coins"`
	BilledCoins   int64        `json:"billedCoins" db:"billed_coins"`
	ReceiverShare int64        `json:"receiverShare" db:"receiver_share"`
	AdminShare    int64        `json:"adminShare" db:"admin_share"`
	Distribution  Distribution `json:"distribution"`

	// Status is free-form; display code classifies it into a few buckets.
	Status string `json:"status" db:"status"`

	DurationSeconds int        `json:"durationSeconds" db:"duration_seconds"`
	StartedAt       *time.Time `json:"startedAt,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	Timestamp       time.Time  `json:"timestamp" db:"timestamp"`

	Rates Rates `json:"rates"`
}

type Participants struct {
	InitiatorID string `json:"initiatorId" db:"initiator_id"`
	ReceiverID  string `json:"receiverId" db:"receiver_id"`
}

// Involves reports whether userID is one of the two participants.
func (p Participants) Involves(userID string) bool {
	return userID != "" && (p.InitiatorID == userID || p.ReceiverID == userID)
}

// Peer returns the other participant from userID's point of view.
func (p Participants) Peer(userID string) string {
	if p.InitiatorID == userID {
		return p.ReceiverID
	}
	return p.InitiatorID
}

// Distribution is the server's breakdown of where billed coins went.
// FemaleShare is the wire name for the receiver's share.
type Distribution struct {
	FemaleShare int64  `json:"femaleShare"`
	AdminShare  int64  `json:"adminShare"`
	PayerID     string `json:"payerId,omitempty"`
}

// Rates are informational per-minute coin rates attached to a transaction.
type Rates struct {
	Voice int64 `json:"voice"`
	Video int64 `json:"video"`
}

// DefaultRates applies when the server omits rates.
var DefaultRates = Rates{Voice: 20, Video: 40}

// For returns the per-minute rate for a call type.
func (r Rates) For(t CallType) int64 {
	if t == CallTypeVideo {
		return r.Video
	}
	return r.Voice
}

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Well-known statuses sent by the billing backend. The list is not exhaustive.
const (
	StatusCompleted     = "completed"
	StatusEnded         = "ended"
	StatusSuccess       = "success"
	StatusPaid          = "paid"
	StatusUnpaidPending = "unpaid_pending"
	StatusMissed        = "missed"
	StatusCancelled     = "cancelled"
	StatusRejected      = "rejected"
	StatusFailed        = "failed"
	StatusFailedBilling = "failed_billing"
)

// RawTransaction is the untrusted wire shape delivered by the billing backend or a
// realtime channel. Any field may be missing; zero values count as missing.
// Coin and duration fields accept fractional JSON numbers and round them (see wire.go).
type RawTransaction struct {
	TransactionID string        `json:"transactionId"`
	CallID        string        `json:"callId"`
	CallType      CallType      `json:"callType"`
	Participants  Participants  `json:"participants"`
	PayerUserID   string        `json:"payerUserId"`
	TotalCoins    int64         `json:"totalCoins"`
	BilledCoins   int64         `json:"billedCoins"`
	ReceiverShare int64         `json:"receiverShare"`
	FemaleShare   int64         `json:"femaleShare"`
	AdminShare    int64         `json:"adminShare"`
	Distribution  *Distribution `json:"distribution"`
	Status        string        `json:"status"`

	DurationSeconds int        `json:"durationSeconds"`
	StartedAt       *time.Time `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	Timestamp       *time.Time `json:"timestamp"`

	Rates *Rates `json:"rates"`
}

// Payer returns the paying user, falling back to the distribution's payer id.
// Empty when the server named neither.
func (t Transaction) Payer() string {
	if t.PayerUserID != "" {
		return t.PayerUserID
	}
	return t.Distribution.PayerID
}

// Package callevent turns a call transaction into what one viewer sees in a chat
// timeline or call list.
package callevent

import (
	"fmt"

	"coincall-platform/internal/calls"
)

// State is the display bucket of a transaction status.
type State string

const (
	StateCompleted State = "completed"
	StateMissed    State = "missed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
	StatePending   State = "pending"
)

// Classify maps a free-form status onto a display bucket. Unknown statuses are Pending.
func Classify(status string) State {
	switch status {
	case calls.StatusCompleted, calls.StatusEnded, calls.StatusSuccess, calls.StatusPaid, calls.StatusUnpaidPending:
		return StateCompleted
	case calls.StatusMissed:
		return StateMissed
	case calls.StatusCancelled, calls.StatusRejected:
		return StateCancelled
	case calls.StatusFailed, calls.StatusFailedBilling:
		return StateFailed
	default:
		return StatePending
	}
}

// MovesCoins reports whether tx settled coins between the participants: a
// Completed call, or one that ran and was billed whatever its status says.
// Wallet postings, reports and the coin line all follow this rule.
func MovesCoins(tx calls.Transaction) bool {
	if Classify(tx.Status) == StateCompleted {
		return true
	}
	return tx.DurationSeconds > 0 && tx.BilledCoins > 0
}

// Viewer identifies who is looking at the event.
type Viewer struct {
	UserID string
	// IsCaller, when set, wins over comparing UserID with the initiator.
	IsCaller *bool
}

// Display is the per-viewer rendering of one call event.
type Display struct {
	State      State  `json:"state"`
	Label      string `json:"label"`
	Actionable bool   `json:"actionable"`

	// CoinsLabel is empty when no coin line is shown.
	CoinsLabel string `json:"coinsLabel,omitempty"`
	// CoinsDelta is negative for the payer and positive for the receiver.
	CoinsDelta int64 `json:"coinsDelta"`
}

// Resolve computes the label, actionability and coin line for v.
func Resolve(tx calls.Transaction, v Viewer) Display {
	isCaller := v.UserID != "" && v.UserID == tx.Participants.InitiatorID
	if v.IsCaller != nil {
		isCaller = *v.IsCaller
	}

	payer := tx.Payer()
	isPayer := isCaller
	if payer != "" {
		isPayer = payer == v.UserID
	}

	d := Display{State: Classify(tx.Status)}
	direction := "Incoming"
	if isCaller {
		direction = "Outgoing"
	}
	kind := "voice"
	if tx.CallType == calls.CallTypeVideo {
		kind = "video"
	}

	switch d.State {
	case StateCompleted:
		d.Label = fmt.Sprintf("%s %s call", direction, kind)
		if tx.DurationSeconds > 0 {
			d.Label += " • " + FormatDuration(tx.DurationSeconds)
		}
	case StateMissed:
		if isCaller {
			d.Label = "Cancelled call"
		} else {
			d.Label = "Missed call"
			d.Actionable = true
		}
	case StateCancelled:
		d.Label = direction + " call cancelled"
	case StateFailed:
		if kind == "video" {
			d.Label = "Video call failed"
		} else {
			d.Label = "Voice call failed"
		}
	default:
		d.Label = fmt.Sprintf("%s %s call", direction, kind)
	}

	if MovesCoins(tx) {
		switch {
		case isPayer && tx.BilledCoins > 0:
			d.CoinsLabel = fmt.Sprintf("%d coins deducted", tx.BilledCoins)
			d.CoinsDelta = -tx.BilledCoins
		case !isPayer && tx.ReceiverShare > 0:
			d.CoinsLabel = fmt.Sprintf("%d coins received", tx.ReceiverShare)
			d.CoinsDelta = tx.ReceiverShare
		}
	}
	return d
}

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour on.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

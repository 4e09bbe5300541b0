package realtime

import (
	"time"

	"coincall-platform/internal/callevent"
	"coincall-platform/internal/calls"
)

// EmitFunc hands a frame to the connection. It reports false when the frame was dropped.
type EmitFunc func(Frame) bool

// Session renders transactions for one connected user.
type Session struct {
	userID   string
	seen     calls.SeenSet
	ingestor *calls.Ingestor
	emit     EmitFunc
}

// NewSession returns a session for userID. seen must not be shared with another session.
func NewSession(userID string, seen calls.SeenSet, emit EmitFunc) *Session {
	if seen == nil {
		seen = calls.NewMemorySeenSet()
	}
	return &Session{
		userID:   userID,
		seen:     seen,
		ingestor: calls.NewIngestor(),
		emit:     emit,
	}
}

// NewSessionWithClock is NewSession with a fixed clock for the default timestamp.
func NewSessionWithClock(userID string, seen calls.SeenSet, emit EmitFunc, clock func() time.Time) *Session {
	s := NewSession(userID, seen, emit)
	s.ingestor = calls.NewIngestorWithClock(clock)
	return s
}

func (s *Session) UserID() string { return s.userID }

// Deliver ingests raw for this session's user. It returns nil when the transaction
// was already delivered to the session, is malformed, or does not involve the user.
func (s *Session) Deliver(raw *calls.RawTransaction) *calls.Transaction {
	if raw == nil || !raw.Participants.Involves(s.userID) {
		return nil
	}
	return s.ingestor.Ingest(raw, calls.Session{
		Seen:           s.seen,
		OnChatUpdate:   s.chatSink,
		OnCallsUpdate:  s.callsSink,
		OnWalletUpdate: s.walletSink,
	})
}

func (s *Session) display(tx *calls.Transaction) *callevent.Display {
	d := callevent.Resolve(*tx, callevent.Viewer{UserID: s.userID})
	return &d
}

func (s *Session) chatSink(tx *calls.Transaction) {
	s.emit(Frame{
		Type:        FrameChatCallEvent,
		Transaction: tx,
		Display:     s.display(tx),
		PeerID:      tx.Participants.Peer(s.userID),
	})
}

func (s *Session) callsSink(tx *calls.Transaction) {
	s.emit(Frame{Type: FrameCallsUpdate, Transaction: tx, Display: s.display(tx)})
}

// walletSink only emits when the viewer's coins moved.
func (s *Session) walletSink(tx *calls.Transaction) {
	d := s.display(tx)
	if d.CoinsDelta == 0 {
		return
	}
	s.emit(Frame{Type: FrameWalletUpdate, Transaction: tx, Display: d})
}

// toRaw turns a stored transaction back into the wire shape so it goes through
// the same ingest path as a live delivery.
func toRaw(tx calls.Transaction) *calls.RawTransaction {
	ts := tx.Timestamp
	dist := tx.Distribution
	rates := tx.Rates
	return &calls.RawTransaction{
		TransactionID:   tx.TransactionID,
		CallID:          tx.CallID,
		CallType:        tx.CallType,
		Participants:    tx.Participants,
		PayerUserID:     tx.PayerUserID,
		TotalCoins:      tx.TotalCoins,
		BilledCoins:     tx.BilledCoins,
		ReceiverShare:   tx.ReceiverShare,
		AdminShare:      tx.AdminShare,
		Distribution:    &dist,
		Status:          tx.Status,
		DurationSeconds: tx.DurationSeconds,
		StartedAt:       tx.StartedAt,
		EndedAt:         tx.EndedAt,
		Timestamp:       &ts,
		Rates:           &rates,
	}
}

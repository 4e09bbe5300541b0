package calls

import "time"

// Sink receives a normalized transaction. The return value of a sink is never consumed.
type Sink func(tx *Transaction)

// Session carries everything one ingest call needs from its owner: the seen-set
// shared across calls within the owner's lifetime and up to three optional sinks.
//
// The seen-set must be created per session and dropped with it; sharing one across
// unrelated sessions suppresses events that the other session never saw.
type Session struct {
	Seen SeenSet

	OnChatUpdate   Sink
	OnCallsUpdate  Sink
	OnWalletUpdate Sink
}

// Ingestor normalizes and fans out call transactions.
type Ingestor struct {
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewIngestor() *Ingestor {
	return &Ingestor{clock: time.Now}
}

// NewIngestorWithClock uses clock for the default timestamp. A nil clock means time.Now.
func NewIngestorWithClock(clock func() time.Time) *Ingestor {
	if clock == nil {
		clock = time.Now
	}
	return &Ingestor{clock: clock}
}

// Ingest processes one delivery of a transaction.
//
// It returns nil without side effects when data is nil, has no TransactionID, or
// the id was already seen in this session. Otherwise the id is marked seen before
// any sink runs, the record is normalized, each supplied sink is called once in the
// order chat, calls, wallet, and the same record is returned.
func (in *Ingestor) Ingest(data *RawTransaction, s Session) *Transaction {
	if data == nil || data.TransactionID == "" {
		return nil
	}
	if s.Seen != nil && !s.Seen.MarkIfNew(data.TransactionID) {
		return nil
	}

	tx := Normalize(*data, in.clock().UTC())

	for _, sink := range []Sink{s.OnChatUpdate, s.OnCallsUpdate, s.OnWalletUpdate} {
		if sink != nil {
			sink(&tx)
		}
	}
	return &tx
}

var defaultIngestor = NewIngestor()

// Ingest runs the package default Ingestor.
func Ingest(data *RawTransaction, s Session) *Transaction {
	return defaultIngestor.Ingest(data, s)
}

package calls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	order []string
	got   []*Transaction
}

func (r *sinkRecorder) session(seen SeenSet) Session {
	return Session{
		Seen: seen,
		OnChatUpdate: func(tx *Transaction) {
			r.order = append(r.order, "chat")
			r.got = append(r.got, tx)
		},
		OnCallsUpdate: func(tx *Transaction) {
			r.order = append(r.order, "calls")
			r.got = append(r.got, tx)
		},
		OnWalletUpdate: func(tx *Transaction) {
			r.order = append(r.order, "wallet")
			r.got = append(r.got, tx)
		},
	}
}

func fixedIngestor(now time.Time) *Ingestor {
	return &Ingestor{clock: func() time.Time { return now }}
}

func TestIngest_DuplicateIDFansOutOnce(t *testing.T) {
	rec := &sinkRecorder{}
	s := rec.session(NewMemorySeenSet())

	first := Ingest(&RawTransaction{TransactionID: "tx-1", BilledCoins: 40}, s)
	require.NotNil(t, first)

	second := Ingest(&RawTransaction{TransactionID: "tx-1", BilledCoins: 99, Status: StatusMissed}, s)
	assert.Nil(t, second)

	assert.Equal(t, []string{"chat", "calls", "wallet"}, rec.order)
	assert.Equal(t, int64(40), first.BilledCoins)
}

func TestIngest_RejectsMissingInput(t *testing.T) {
	rec := &sinkRecorder{}
	seen := NewMemorySeenSet()
	s := rec.session(seen)

	assert.Nil(t, Ingest(nil, s))
	assert.Nil(t, Ingest(&RawTransaction{}, s))
	assert.Empty(t, rec.order)
	assert.Equal(t, 0, seen.Len())
}

func TestIngest_SinksReceiveReturnedRecord(t *testing.T) {
	rec := &sinkRecorder{}
	tx := Ingest(&RawTransaction{TransactionID: "tx-2"}, rec.session(NewMemorySeenSet()))
	require.NotNil(t, tx)
	require.Len(t, rec.got, 3)
	for _, got := range rec.got {
		assert.Same(t, tx, got)
	}
}

func TestIngest_MissingSinksAreSkipped(t *testing.T) {
	var calls int
	s := Session{
		Seen:          NewMemorySeenSet(),
		OnCallsUpdate: func(*Transaction) { calls++ },
	}
	tx := Ingest(&RawTransaction{TransactionID: "tx-3"}, s)
	require.NotNil(t, tx)
	assert.Equal(t, 1, calls)
}

func TestIngest_MarksSeenBeforeFanOut(t *testing.T) {
	seen := NewMemorySeenSet()
	var reentrant *Transaction
	var s Session
	s = Session{
		Seen: seen,
		OnChatUpdate: func(tx *Transaction) {
			reentrant = Ingest(&RawTransaction{TransactionID: tx.TransactionID}, s)
		},
	}

	tx := Ingest(&RawTransaction{TransactionID: "tx-4"}, s)
	require.NotNil(t, tx)
	assert.Nil(t, reentrant)
}

func TestIngest_SeparateSessionsDoNotShareSeenIDs(t *testing.T) {
	a := Session{Seen: NewMemorySeenSet()}
	b := Session{Seen: NewMemorySeenSet()}
	raw := &RawTransaction{TransactionID: "tx-5"}

	assert.NotNil(t, Ingest(raw, a))
	assert.NotNil(t, Ingest(raw, b))
	assert.Nil(t, Ingest(raw, a))
}

func TestIngest_DefaultsTimestampToClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tx := fixedIngestor(now).Ingest(&RawTransaction{TransactionID: "tx-6"}, Session{Seen: NewMemorySeenSet()})
	require.NotNil(t, tx)
	assert.True(t, tx.Timestamp.Equal(now))
}

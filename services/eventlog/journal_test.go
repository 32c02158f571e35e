package eventlog

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nameshare/core/events"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := Open(path)
	require.NoError(t, err)
	j, err := NewJournal(db, nil)
	require.NoError(t, err)
	return j, path
}

func TestJournalAppendAndList(t *testing.T) {
	j, _ := openTestJournal(t)

	j.Emit(events.PoolChanged{Ledger: "holders", Delta: big.NewInt(5), NewPool: big.NewInt(5)})
	j.Emit(events.SnapshotCreated{Ledger: "holders", Epoch: 1, RewardPerUnit: big.NewInt(1), Supply: 5, UnclaimedPool: big.NewInt(0), Expired: big.NewInt(0)})

	recs, err := j.List(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, events.TypeSnapshotCreated, recs[0].Type)
	require.Equal(t, int64(2), recs[0].Seq)
	require.Equal(t, int64(1), recs[1].Seq)

	attrs, err := recs[1].Attrs()
	require.NoError(t, err)
	require.Equal(t, "holders", attrs["ledger"])
	require.Equal(t, "5", attrs["newPool"])

	pools, err := j.ListType(events.TypePoolChanged, 0)
	require.NoError(t, err)
	require.Len(t, pools, 1)
}

func TestJournalResumesSequence(t *testing.T) {
	j, path := openTestJournal(t)
	_, err := j.Append(events.PoolChanged{Ledger: "ecosystem", Delta: big.NewInt(1), NewPool: big.NewInt(1)})
	require.NoError(t, err)

	db, err := Open(path)
	require.NoError(t, err)
	reopened, err := NewJournal(db, nil)
	require.NoError(t, err)
	rec, err := reopened.Append(events.PoolChanged{Ledger: "ecosystem", Delta: big.NewInt(1), NewPool: big.NewInt(2)})
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.Seq)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

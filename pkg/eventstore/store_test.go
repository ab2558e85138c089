package eventstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mp4mux/pkg/muxer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreNotifyAndRecent(t *testing.T) {
	s := newTestStore(t)

	s.Notify(muxer.Event{Kind: muxer.EventMaxFilesizeReached, TrackID: 1})
	s.Notify(muxer.Event{Kind: muxer.EventStopPrematurely, TrackID: 2})

	recs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "STOP_PREMATURELY", recs[0].Kind) // newest first
	assert.EqualValues(t, 2, recs[0].TrackID)
	assert.Equal(t, "MAX_FILESIZE_REACHED", recs[1].Kind)
}

func TestStoreRecentRespectsLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.Notify(muxer.Event{Kind: muxer.EventMaxDurationReached, TrackID: uint32(i)})
	}

	recs, err := s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStoreEvictsOldestBeyondCap(t *testing.T) {
	s := newTestStore(t)
	s.maxRecords = 3

	for i := 0; i < 5; i++ {
		s.Notify(muxer.Event{Kind: muxer.EventMaxDurationReached, TrackID: uint32(i)})
	}

	recs, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

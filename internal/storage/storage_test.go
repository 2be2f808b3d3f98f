package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "datastore.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundtrip(t *testing.T) {
	s := newTestStorage(t)

	settings, err := s.GetSettings("g1")
	require.NoError(t, err)
	assert.Equal(t, GuildSettings{}, settings, "fresh guild starts with zero settings")

	require.NoError(t, s.SetDefaultVolume("g1", 45))
	require.NoError(t, s.SetLoopMode("g1", "queue"))
	require.NoError(t, s.SetAnnounceChannel("g1", "chan-9"))

	settings, err = s.GetSettings("g1")
	require.NoError(t, err)
	assert.Equal(t, 45, settings.DefaultVolume)
	assert.Equal(t, "queue", settings.LoopMode)
	assert.Equal(t, "chan-9", settings.AnnounceChannelID)
}

func TestSettingsAreScopedPerGuild(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.SetDefaultVolume("g1", 80))

	other, err := s.GetSettings("g2")
	require.NoError(t, err)
	assert.Equal(t, 0, other.DefaultVolume)
}

func TestTrackHistoryKeepsNewestEntries(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < tracksHistoryLimit+5; i++ {
		require.NoError(t, s.AppendTrackToHistory("g1", TrackHistoryRecord{
			Title:    fmt.Sprintf("track-%d", i),
			PlayedAt: time.Now(),
		}))
	}

	history, err := s.FetchTrackHistory("g1")
	require.NoError(t, err)
	require.Len(t, history, tracksHistoryLimit)
	assert.Equal(t, fmt.Sprintf("track-%d", 5), history[0].Title, "oldest entries are dropped")
	assert.Equal(t, fmt.Sprintf("track-%d", tracksHistoryLimit+4), history[len(history)-1].Title)
}

func TestHistoryEmptyForFreshGuild(t *testing.T) {
	s := newTestStorage(t)
	history, err := s.FetchTrackHistory("g1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

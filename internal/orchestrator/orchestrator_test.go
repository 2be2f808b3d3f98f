package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadenza/internal/lavalink"
	"cadenza/internal/player"
	"cadenza/internal/search"
	"cadenza/internal/track"
)

// fakeHandle is an in-memory NodeHandle recording every control request.
type fakeHandle struct {
	mu      sync.Mutex
	id      string
	played  []string
	stops   int
	guilds  map[string]bool
	voice   []string
	playErr error
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, guilds: map[string]bool{}}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Play(guildID string, t track.Track, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, t.Title)
	return nil
}

func (f *fakeHandle) Stop(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeHandle) Pause(guildID string, paused bool) error { return nil }
func (f *fakeHandle) SetVolume(guildID string, v int) error   { return nil }

func (f *fakeHandle) Destroy(guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.guilds, guildID)
	return nil
}

func (f *fakeHandle) AssignGuild(guildID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds[guildID] = true
}

func (f *fakeHandle) ReleaseGuild(guildID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.guilds, guildID)
}

func (f *fakeHandle) VoiceUpdate(guildID, sessionID string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = append(f.voice, guildID+"/"+sessionID)
	return nil
}

func (f *fakeHandle) playedTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

// fakeSource serves one node and an event channel tests push into.
type fakeSource struct {
	node      *fakeHandle
	events    chan lavalink.Event
	selectErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{node: newFakeHandle("n1"), events: make(chan lavalink.Event, 16)}
}

func (s *fakeSource) Select() (NodeHandle, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	return s.node, nil
}

func (s *fakeSource) Node(id string) (NodeHandle, bool) {
	if id == s.node.id {
		return s.node, true
	}
	return nil, false
}

func (s *fakeSource) Events() <-chan lavalink.Event { return s.events }

// fakeVoice records join/leave calls.
type fakeVoice struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
}

func (v *fakeVoice) Join(guildID, channelID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.joins = append(v.joins, guildID+"/"+channelID)
	return nil
}

func (v *fakeVoice) Leave(guildID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.leaves = append(v.leaves, guildID)
	return nil
}

func (v *fakeVoice) leaveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.leaves)
}

// fakeNotifier captures user-facing notifications.
type fakeNotifier struct {
	mu     sync.Mutex
	tracks []string
	ended  []string
}

func (n *fakeNotifier) NowPlaying(guildID, textChannelID string, t track.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tracks = append(n.tracks, t.Title)
}

func (n *fakeNotifier) SessionEnded(guildID, textChannelID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, reason)
}

// fakeResolver maps queries to canned tracks.
type fakeResolver struct {
	results map[string]search.Result
}

func (r *fakeResolver) Resolve(ctx context.Context, query, requester string) (search.Result, error) {
	res, ok := r.results[query]
	if !ok {
		return search.Result{}, nil
	}
	for i := range res.Tracks {
		res.Tracks[i].Requester = requester
	}
	return res, nil
}

type fixture struct {
	orch     *Orchestrator
	source   *fakeSource
	voice    *fakeVoice
	notifier *fakeNotifier
	resolver *fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	source := newFakeSource()
	voice := &fakeVoice{}
	notifier := &fakeNotifier{}
	resolver := &fakeResolver{results: map[string]search.Result{
		"song a": {Tracks: []track.Track{{Title: "a", Encoded: "enc:a"}}},
		"song b": {Tracks: []track.Track{{Title: "b", Encoded: "enc:b"}}},
		"album": {
			Tracks:       []track.Track{{Title: "p1"}, {Title: "p2"}, {Title: "p3"}},
			PlaylistName: "Best Of",
		},
	}}

	orch := New(context.Background(), Config{DefaultVolume: 30}, source, resolver, voice, notifier, zerolog.Nop())
	t.Cleanup(orch.Shutdown)
	return &fixture{orch: orch, source: source, voice: voice, notifier: notifier, resolver: resolver}
}

func (f *fixture) play(t *testing.T, guildID, query string) PlayResult {
	t.Helper()
	res, err := f.orch.Play(context.Background(), guildID, "vc1", "tc1", query, "user1")
	require.NoError(t, err)
	return res
}

func TestPlayStartsSession(t *testing.T) {
	f := newFixture(t)

	res := f.play(t, "g1", "song a")
	assert.True(t, res.Started)
	assert.Equal(t, []string{"a"}, f.source.node.playedTitles())
	assert.Equal(t, []string{"g1/vc1"}, f.voice.joins)

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "a", cur.Title)
	assert.Equal(t, "user1", cur.Requester)
}

func TestPlayWhileRunningQueues(t *testing.T) {
	f := newFixture(t)

	f.play(t, "g1", "song a")
	res := f.play(t, "g1", "song b")
	assert.False(t, res.Started)
	assert.Equal(t, 1, res.Position)

	_, pending, err := f.orch.QueueSnapshot("g1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].Title)
}

func TestPlayNoResults(t *testing.T) {
	f := newFixture(t)
	res := f.play(t, "g1", "gibberish")
	assert.True(t, res.NoResults())
	assert.Empty(t, f.voice.joins, "no session for an empty result")
}

func TestPlayPlaylistEnqueuesAll(t *testing.T) {
	f := newFixture(t)
	res := f.play(t, "g1", "album")
	assert.True(t, res.Started)
	assert.Equal(t, "Best Of", res.PlaylistName)

	_, pending, err := f.orch.QueueSnapshot("g1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPlayNoNodeAvailable(t *testing.T) {
	f := newFixture(t)
	f.source.selectErr = lavalink.ErrNoAvailableNode

	_, err := f.orch.Play(context.Background(), "g1", "vc1", "tc1", "song a", "u")
	assert.ErrorIs(t, err, lavalink.ErrNoAvailableNode)
	assert.Equal(t, 0, f.orch.Registry().Len(), "failed session must not linger")
}

func TestSkipThroughQueueEndsIdle(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g1", "song b")

	next, err := f.orch.Skip("g1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.Title)

	next, err = f.orch.Skip("g1")
	require.NoError(t, err)
	assert.Nil(t, next)

	_, _, err = f.orch.NowPlaying("g1")
	assert.ErrorIs(t, err, player.ErrNoTrackPlaying)
}

func TestCommandsForUnknownGuild(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Skip("nope")
	assert.ErrorIs(t, err, player.ErrNotFound)
	assert.ErrorIs(t, f.orch.Stop("nope"), player.ErrNotFound)
	_, err = f.orch.TogglePause("nope")
	assert.ErrorIs(t, err, player.ErrNotFound)
}

func TestStopTearsDownSession(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")

	require.NoError(t, f.orch.Stop("g1"))
	assert.Equal(t, 1, f.voice.leaveCount())
	assert.Equal(t, 0, f.orch.Registry().Len())

	// Second stop has nothing left to act on.
	assert.ErrorIs(t, f.orch.Stop("g1"), player.ErrNotFound)
}

func TestTrackEndFinishedAdvances(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g1", "song b")

	f.orch.handleEvent(lavalink.Event{
		Node: "n1", Type: lavalink.EventTrackEnd, GuildID: "g1", Reason: lavalink.EndReasonFinished,
	})

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Title)
}

func TestTrackEndReplacedDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g1", "song b")

	// "replaced" and "stopped" ends are self-caused; the command path already
	// advanced the queue.
	for _, reason := range []string{lavalink.EndReasonReplaced, lavalink.EndReasonStopped} {
		f.orch.handleEvent(lavalink.Event{
			Node: "n1", Type: lavalink.EventTrackEnd, GuildID: "g1", Reason: reason,
		})
	}

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "a", cur.Title)
}

func TestTrackExceptionAdvances(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g1", "song b")

	f.orch.handleEvent(lavalink.Event{
		Node: "n1", Type: lavalink.EventTrackException, GuildID: "g1", Error: "boom",
	})

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Title)
}

func TestEventForUnknownGuildDropped(t *testing.T) {
	f := newFixture(t)
	// Must not panic or create state.
	f.orch.handleEvent(lavalink.Event{Node: "n1", Type: lavalink.EventTrackEnd, GuildID: "ghost", Reason: lavalink.EndReasonFinished})
	assert.Equal(t, 0, f.orch.Registry().Len())
}

func TestEventFromUnboundNodeDropped(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g1", "song b")

	f.orch.handleEvent(lavalink.Event{
		Node: "other-node", Type: lavalink.EventTrackEnd, GuildID: "g1", Reason: lavalink.EndReasonFinished,
	})

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "a", cur.Title, "stale event must not advance the queue")
}

func TestPlayerUpdateTracksPosition(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")

	f.orch.handleEvent(lavalink.Event{Node: "n1", Type: lavalink.EventPlayerUpdate, GuildID: "g1", Position: 9000})

	_, pos, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), pos)
}

func TestWebSocketClosedDestroysSession(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")

	f.orch.handleEvent(lavalink.Event{Node: "n1", Type: lavalink.EventWebSocketClosed, GuildID: "g1", Code: 4006})

	assert.Equal(t, 0, f.orch.Registry().Len())
	f.notifier.mu.Lock()
	assert.Len(t, f.notifier.ended, 1)
	f.notifier.mu.Unlock()
}

func TestNodeFailoverSuspendsAndResumes(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g2", "song b")

	f.orch.HandleNodeDown("n1", []string{"g1", "g2"})
	for _, g := range []string{"g1", "g2"} {
		p, err := f.orch.Registry().Get(g)
		require.NoError(t, err)
		assert.True(t, p.Paused(), "guild %s should be suspended", g)
	}

	f.orch.HandleNodeUp("n1", []string{"g1", "g2"})
	for _, g := range []string{"g1", "g2"} {
		p, err := f.orch.Registry().Get(g)
		require.NoError(t, err)
		assert.False(t, p.Paused(), "guild %s should have resumed", g)
		assert.Equal(t, player.StatePlaying, p.State())
	}
	// Each current track was re-requested on the recovered node.
	assert.GreaterOrEqual(t, len(f.source.node.playedTitles()), 4)
}

func TestNodeUpResumeFailureDestroysSession(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")

	f.orch.HandleNodeDown("n1", []string{"g1"})
	f.source.node.mu.Lock()
	f.source.node.playErr = errors.New("still broken")
	f.source.node.mu.Unlock()

	f.orch.HandleNodeUp("n1", []string{"g1"})
	assert.Equal(t, 0, f.orch.Registry().Len())
	f.notifier.mu.Lock()
	assert.Len(t, f.notifier.ended, 1)
	f.notifier.mu.Unlock()
}

func TestNodeLostDestroysSessionsWithNotice(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g2", "song b")

	f.orch.HandleNodeLost("n1", []string{"g1", "g2"})
	assert.Equal(t, 0, f.orch.Registry().Len())
	assert.Equal(t, 2, f.voice.leaveCount())
	f.notifier.mu.Lock()
	assert.Len(t, f.notifier.ended, 2)
	f.notifier.mu.Unlock()
}

func TestIdleSweepReclaims(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.IdleTimeout = 0

	f.play(t, "g1", "song a")
	_, err := f.orch.Skip("g1") // drains to idle
	require.NoError(t, err)

	f.orch.sweepIdle()
	assert.Equal(t, 0, f.orch.Registry().Len())
	assert.Equal(t, 1, f.voice.leaveCount())
}

func TestExpiryRacingPlayDoesNotOrphanSession(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.IdleTimeout = 0

	f.play(t, "g1", "song a")
	_, err := f.orch.Skip("g1") // drains to idle
	require.NoError(t, err)

	old, err := f.orch.Registry().Get("g1")
	require.NoError(t, err)

	// The sweep expires the player, then a play slips in before the sweep's
	// removal step. The play replaces the destroyed entry with a live one.
	require.True(t, old.TryExpire(0))
	res := f.play(t, "g1", "song b")
	require.True(t, res.Started)

	// The sweep's removal is keyed to the expired instance and must not
	// evict the fresh session.
	assert.False(t, f.orch.Registry().RemoveIf("g1", old))

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Title, "fresh session must stay reachable")
}

func TestLateSessionTeardownSparesReplacement(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")

	old, err := f.orch.Registry().Get("g1")
	require.NoError(t, err)

	require.NoError(t, f.orch.Stop("g1"))
	f.play(t, "g1", "song b")

	// A teardown keyed to the old session (a late voice-closed event) must
	// be a no-op against its replacement.
	f.orch.destroySession(old, "late event")

	cur, _, err := f.orch.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Title)
	f.notifier.mu.Lock()
	assert.Empty(t, f.notifier.ended, "stale teardown must not notify")
	f.notifier.mu.Unlock()
}

func TestIdleSweepSparesActiveSessions(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.IdleTimeout = 0

	f.play(t, "g1", "song a")
	f.orch.sweepIdle()
	assert.Equal(t, 1, f.orch.Registry().Len())
}

func TestVoiceServerUpdateForwards(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")

	require.NoError(t, f.orch.VoiceServerUpdate("g1", "sess-1", map[string]string{"token": "tk"}))
	f.source.node.mu.Lock()
	assert.Equal(t, []string{"g1/sess-1"}, f.source.node.voice)
	f.source.node.mu.Unlock()
}

func TestCrossGuildIsolation(t *testing.T) {
	f := newFixture(t)
	f.play(t, "g1", "song a")
	f.play(t, "g2", "song b")

	require.NoError(t, f.orch.Stop("g1"))

	cur, _, err := f.orch.NowPlaying("g2")
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Title, "stopping one guild must not touch another")
}

package player

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cadenza/internal/queue"
	"cadenza/internal/track"
)

// State is the lifecycle state of a guild player.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StatePaused
	StateStopping
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// LoopMode controls what happens to a track when it finishes.
type LoopMode string

const (
	LoopOff   LoopMode = "off"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

var (
	ErrNotFound        = errors.New("no active player for this guild")
	ErrNoTrackPlaying  = errors.New("no track is currently playing")
	ErrPlayerDestroyed = errors.New("player has been destroyed")
)

// NodeClient is the control surface a player uses to drive its assigned
// audio node. The node performs the actual decoding and streaming.
type NodeClient interface {
	ID() string
	Play(guildID string, t track.Track, volume int) error
	Stop(guildID string) error
	Pause(guildID string, paused bool) error
	SetVolume(guildID string, volume int) error
	Destroy(guildID string) error
}

// advanceReason distinguishes why the current track is being replaced. It
// decides the loop-mode re-enqueue behavior.
type advanceReason int

const (
	advanceFinished advanceReason = iota
	advanceSkipped
	advanceErrored
)

// Player is the per-guild playback state machine. All mutation happens under
// the player's own lock so unrelated guilds never block each other; node
// events and user commands for the same guild serialize on it.
type Player struct {
	mu sync.Mutex

	guildID string
	state   State
	queue   *queue.Queue
	current *track.Track
	volume  int
	paused  bool
	loop    LoopMode

	voiceChannelID string
	textChannelID  string
	lastActive     time.Time
	position       int64 // playback position in ms, reported by the node

	node NodeClient
	log  zerolog.Logger
}

func New(guildID string, defaultVolume int, log zerolog.Logger) *Player {
	return &Player{
		guildID:    guildID,
		state:      StateIdle,
		queue:      queue.New(),
		volume:     clampVolume(defaultVolume),
		loop:       LoopOff,
		lastActive: time.Now(),
		log:        log.With().Str("comp", "player").Str("guild", guildID).Logger(),
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (p *Player) GuildID() string { return p.guildID }

// BindNode assigns the player to an audio node. Many players may share one
// node; a player is bound to at most one node at a time.
func (p *Player) BindNode(n NodeClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.node = n
}

func (p *Player) Node() NodeClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

// BindChannels records the voice channel the session plays into and the text
// channel status messages go to.
func (p *Player) BindChannels(voiceChannelID, textChannelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceChannelID = voiceChannelID
	p.textChannelID = textChannelID
	p.lastActive = time.Now()
}

func (p *Player) VoiceChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannelID
}

func (p *Player) TextChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

// Enqueue appends tracks and returns the queue length afterwards.
func (p *Player) Enqueue(tracks ...track.Track) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return 0, ErrPlayerDestroyed
	}
	p.queue.Enqueue(tracks...)
	p.lastActive = time.Now()
	p.log.Debug().Int("added", len(tracks)).Int("queue_len", p.queue.Len()).Msg("tracks enqueued")
	return p.queue.Len(), nil
}

// BeginConnect moves an idle player into the connecting state while the
// voice transport is established. No-op when playback is already running.
func (p *Player) BeginConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle {
		p.state = StateConnecting
	}
}

// VoiceReady completes the connect transition: it pulls the next queued track
// into the current slot and starts it on the node. When the queue is empty the
// player settles back to idle. Returns the started track, if any.
func (p *Player) VoiceReady() (*track.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return nil, ErrPlayerDestroyed
	}
	if p.current != nil {
		// A concurrent command already started playback.
		return nil, nil
	}
	return p.startNextLocked()
}

// startNextLocked pulls the queue head and asks the node to play it. Caller
// holds p.mu.
func (p *Player) startNextLocked() (*track.Track, error) {
	next, err := p.queue.Dequeue()
	if err != nil {
		p.current = nil
		p.paused = false
		p.position = 0
		p.state = StateIdle
		p.lastActive = time.Now()
		return nil, nil
	}

	p.current = &next
	p.paused = false
	p.position = 0
	p.state = StatePlaying
	p.lastActive = time.Now()

	if p.node != nil {
		if err := p.node.Play(p.guildID, next, p.volume); err != nil {
			p.log.Error().Err(err).Str("track", next.Title).Msg("node rejected play request")
			return nil, err
		}
	}
	p.log.Info().Str("track", next.Title).Int("queue_len", p.queue.Len()).Msg("now playing")
	return &next, nil
}

// HandleTrackFinished advances the queue after the node reports the current
// track completed on its own. Loop mode decides whether the finished track is
// replayed (head), rotated (tail) or discarded.
func (p *Player) HandleTrackFinished() (*track.Track, error) {
	return p.advance(advanceFinished)
}

// HandleTrackException advances after a playback failure. The broken track is
// never re-enqueued regardless of loop mode, so it cannot loop forever.
func (p *Player) HandleTrackException(cause string) (*track.Track, error) {
	p.mu.Lock()
	if p.current != nil {
		p.log.Warn().Str("track", p.current.Title).Str("cause", cause).Msg("track failed, advancing")
	}
	p.mu.Unlock()
	return p.advance(advanceErrored)
}

// Skip discards the current track and advances. Under loop `track` the skip
// still forces advancement; under loop `queue` the skipped track rotates to
// the tail like a finished one.
func (p *Player) Skip() (*track.Track, error) {
	return p.advance(advanceSkipped)
}

// advance is the single queue-advancement path shared by skip, track-finished
// and track-exception. Holding the lock across the whole transition is what
// keeps a concurrent skip and a finished event from double-advancing.
func (p *Player) advance(reason advanceReason) (*track.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDestroyed {
		return nil, ErrPlayerDestroyed
	}
	if p.current == nil {
		if reason == advanceSkipped {
			return nil, ErrNoTrackPlaying
		}
		// Stale node event racing against a completed cleanup.
		return nil, nil
	}

	finished := *p.current
	switch p.loop {
	case LoopTrack:
		if reason == advanceFinished {
			p.queue.EnqueueHead(finished)
		}
	case LoopQueue:
		if reason != advanceErrored {
			p.queue.Enqueue(finished)
		}
	}

	p.current = nil
	next, err := p.startNextLocked()
	if err != nil {
		return nil, err
	}
	if next == nil && p.node != nil {
		// Queue drained: tell the node to stop rendering.
		if err := p.node.Stop(p.guildID); err != nil {
			p.log.Warn().Err(err).Msg("failed to stop node playback")
		}
	}
	return next, nil
}

// Pause suspends playback. A pause with no current track is a no-op.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return ErrPlayerDestroyed
	}
	if p.current == nil || p.paused {
		return nil
	}
	p.paused = true
	p.state = StatePaused
	p.lastActive = time.Now()
	if p.node != nil {
		return p.node.Pause(p.guildID, true)
	}
	return nil
}

// Resume continues playback. A resume with no current track is a no-op.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return ErrPlayerDestroyed
	}
	if p.current == nil || !p.paused {
		return nil
	}
	p.paused = false
	p.state = StatePlaying
	p.lastActive = time.Now()
	if p.node != nil {
		return p.node.Pause(p.guildID, false)
	}
	return nil
}

// SetVolume clamps to [0,100], stores and pushes to the node. Returns the
// stored value.
func (p *Player) SetVolume(v int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return 0, ErrPlayerDestroyed
	}
	p.volume = clampVolume(v)
	p.lastActive = time.Now()
	if p.node != nil && p.current != nil {
		if err := p.node.SetVolume(p.guildID, p.volume); err != nil {
			return p.volume, err
		}
	}
	return p.volume, nil
}

func (p *Player) SetLoopMode(m LoopMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return ErrPlayerDestroyed
	}
	p.loop = m
	p.lastActive = time.Now()
	return nil
}

// Shuffle randomizes the remaining queue. The current track is unaffected.
func (p *Player) Shuffle() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return ErrPlayerDestroyed
	}
	if p.queue.Len() == 0 {
		return queue.ErrEmpty
	}
	p.queue.Shuffle()
	p.lastActive = time.Now()
	return nil
}

// ClearQueue empties the pending queue, leaving the current track playing.
func (p *Player) ClearQueue() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return 0, ErrPlayerDestroyed
	}
	p.lastActive = time.Now()
	return p.queue.Clear(), nil
}

// RemoveAt removes the queued track at the given zero-based position.
func (p *Player) RemoveAt(pos int) (track.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return track.Track{}, ErrPlayerDestroyed
	}
	p.lastActive = time.Now()
	return p.queue.RemoveAt(pos)
}

// Destroy tears the session down: flushes the queue, releases the node
// binding and marks the player terminal. Safe to call more than once.
func (p *Player) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return
	}
	p.state = StateStopping

	if p.node != nil {
		if err := p.node.Destroy(p.guildID); err != nil {
			p.log.Warn().Err(err).Msg("failed to destroy node session")
		}
	}

	p.queue.Clear()
	p.current = nil
	p.paused = false
	p.node = nil
	p.state = StateDestroyed
	p.log.Info().Msg("player destroyed")
}

// TryExpire destroys the player if it has sat idle with an empty queue for at
// least the given timeout. The check and the destroy run under the same lock
// acquisition so a command racing in concurrently wins.
func (p *Player) TryExpire(idleTimeout time.Duration) bool {
	p.mu.Lock()
	if p.state != StateIdle || p.queue.Len() != 0 || time.Since(p.lastActive) < idleTimeout {
		p.mu.Unlock()
		return false
	}
	p.state = StateStopping
	node := p.node
	p.current = nil
	p.node = nil
	p.state = StateDestroyed
	p.mu.Unlock()

	if node != nil {
		if err := node.Destroy(p.guildID); err != nil {
			p.log.Warn().Err(err).Msg("failed to destroy node session on expiry")
		}
	}
	p.log.Info().Dur("idle_timeout", idleTimeout).Msg("player expired")
	return true
}

// SuspendForFailover marks the player paused while its node is down. No node
// request is issued; the node is unreachable.
func (p *Player) SuspendForFailover() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying && p.state != StatePaused {
		return
	}
	p.paused = true
	p.state = StatePaused
	p.log.Warn().Msg("playback suspended, node unavailable")
}

// ResumeFromFailover rebinds the player to a recovered (or replacement) node
// and re-requests the stream for the engine-local current track. The queue
// and current-track pointer survived the outage intact.
func (p *Player) ResumeFromFailover(n NodeClient) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return ErrPlayerDestroyed
	}
	p.node = n
	if p.current == nil {
		return nil
	}
	if err := n.Play(p.guildID, *p.current, p.volume); err != nil {
		return err
	}
	p.paused = false
	p.state = StatePlaying
	p.log.Info().Str("node", n.ID()).Str("track", p.current.Title).Msg("playback resumed after failover")
	return nil
}

// UpdatePosition records the node-reported playback position.
func (p *Player) UpdatePosition(ms int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = ms
}

// --- read-only snapshots ---

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns a copy of the currently playing track, or nil when idle.
func (p *Player) Current() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	c := *p.current
	return &c
}

func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) LoopMode() LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// QueueSnapshot returns a copy of the pending queue for display.
func (p *Player) QueueSnapshot() []track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Tracks()
}

func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// SeedShuffle makes Shuffle deterministic. Tests only.
func (p *Player) SeedShuffle(rng *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.SetRandSource(rng)
}

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cadenza/internal/lavalink"
	"cadenza/internal/player"
	"cadenza/internal/search"
	"cadenza/internal/track"
	"cadenza/pkg/jobmgr"
)

// NodeHandle is the per-node surface the orchestrator needs: the player
// control ops plus session bookkeeping and voice credential forwarding.
type NodeHandle interface {
	player.NodeClient
	AssignGuild(guildID string)
	ReleaseGuild(guildID string)
	VoiceUpdate(guildID, sessionID string, event any) error
}

// NodeSource picks healthy nodes and exposes their event stream.
type NodeSource interface {
	Select() (NodeHandle, error)
	Node(id string) (NodeHandle, bool)
	Events() <-chan lavalink.Event
}

// VoiceConnector joins and leaves guild voice channels on the chat platform.
type VoiceConnector interface {
	Join(guildID, channelID string) error
	Leave(guildID string) error
}

// Notifier pushes user-visible session updates to a guild's text channel.
type Notifier interface {
	NowPlaying(guildID, textChannelID string, t track.Track)
	SessionEnded(guildID, textChannelID, reason string)
}

// Config tunes session reclamation.
type Config struct {
	DefaultVolume int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultVolume <= 0 {
		c.DefaultVolume = 30
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	return c
}

// Orchestrator is the facade the command layer talks to. It translates
// commands into player transitions and node requests, and drains
// node-originated events back into the right player.
type Orchestrator struct {
	cfg      Config
	registry *player.Registry
	nodes    NodeSource
	resolver search.Resolver
	voice    VoiceConnector
	notifier Notifier
	jobs     *jobmgr.Manager
	log      zerolog.Logger
}

func New(ctx context.Context, cfg Config, nodes NodeSource, resolver search.Resolver, voice VoiceConnector, notifier Notifier, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		registry: player.NewRegistry(),
		nodes:    nodes,
		resolver: resolver,
		voice:    voice,
		notifier: notifier,
		log:      log.With().Str("comp", "orchestrator").Logger(),
	}
	o.jobs = jobmgr.New(ctx, nil)
	return o
}

// Start launches the event dispatcher and the idle sweep.
func (o *Orchestrator) Start() error {
	if err := o.jobs.Start("node-events", o.dispatchLoop); err != nil {
		return err
	}
	return o.jobs.Start("idle-sweep", o.sweepLoop)
}

// Shutdown stops background work and tears every session down.
func (o *Orchestrator) Shutdown() {
	o.jobs.StopAll()
	for _, p := range o.registry.All() {
		gid := p.GuildID()
		if _, err := o.registry.Remove(gid); err == nil {
			p.Destroy()
			o.leaveVoice(gid)
		}
	}
}

// Registry exposes the player registry for status commands.
func (o *Orchestrator) Registry() *player.Registry { return o.registry }

// PlayResult summarizes what a play command did.
type PlayResult struct {
	Tracks       []track.Track
	PlaylistName string
	Started      bool
	// Position is the 1-based queue position of the first added track when
	// playback was already running.
	Position int
}

// NoResults reports whether the query resolved to nothing.
func (r PlayResult) NoResults() bool { return len(r.Tracks) == 0 }

// Play resolves the query, enqueues the results and starts the session when
// the guild was idle.
func (o *Orchestrator) Play(ctx context.Context, guildID, voiceChannelID, textChannelID, query, requester string) (PlayResult, error) {
	res, err := o.resolver.Resolve(ctx, query, requester)
	if err != nil {
		return PlayResult{}, err
	}
	if len(res.Tracks) == 0 {
		return PlayResult{}, nil
	}

	// A player destroyed by a concurrent sweep or stop may still be handed
	// out by the registry for one round; retry against a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		p, created := o.registry.GetOrCreate(guildID, func() *player.Player {
			return player.New(guildID, o.cfg.DefaultVolume, o.log)
		})
		p.BindChannels(voiceChannelID, textChannelID)

		qlen, err := p.Enqueue(res.Tracks...)
		if errors.Is(err, player.ErrPlayerDestroyed) {
			o.registry.RemoveIf(guildID, p)
			continue
		}
		if err != nil {
			return PlayResult{}, err
		}

		result := PlayResult{Tracks: res.Tracks, PlaylistName: res.PlaylistName, Position: qlen - len(res.Tracks) + 1}

		if p.Current() == nil {
			started, err := o.startSession(p, guildID, voiceChannelID, created)
			if err != nil {
				return PlayResult{}, err
			}
			result.Started = started
			if started {
				result.Position = 0
			}
		}
		return result, nil
	}
	return PlayResult{}, player.ErrPlayerDestroyed
}

// startSession binds a node, brings the voice transport up and starts the
// first track. A failure on a freshly created player unwinds it so the
// registry holds no half-built sessions.
func (o *Orchestrator) startSession(p *player.Player, guildID, voiceChannelID string, created bool) (bool, error) {
	unwind := func() {
		if created {
			o.registry.Remove(guildID)
			p.Destroy()
		}
	}

	if p.Node() == nil {
		n, err := o.nodes.Select()
		if err != nil {
			unwind()
			return false, err
		}
		n.AssignGuild(guildID)
		p.BindNode(n)
	}

	p.BeginConnect()
	if o.voice != nil {
		if err := o.voice.Join(guildID, voiceChannelID); err != nil {
			unwind()
			return false, err
		}
	}

	started, err := p.VoiceReady()
	if err != nil {
		unwind()
		return false, err
	}
	return started != nil, nil
}

// Skip advances past the current track. Returns the new current track, or
// nil when the queue drained.
func (o *Orchestrator) Skip(guildID string) (*track.Track, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return nil, err
	}
	return p.Skip()
}

func (o *Orchestrator) Pause(guildID string) error {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return err
	}
	return p.Pause()
}

func (o *Orchestrator) Resume(guildID string) error {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return err
	}
	return p.Resume()
}

// TogglePause flips between paused and playing, reporting the new paused
// state.
func (o *Orchestrator) TogglePause(guildID string) (bool, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return false, err
	}
	if p.Paused() {
		return false, p.Resume()
	}
	return true, p.Pause()
}

// Stop destroys the guild's session: queue flushed, node session released,
// voice transport left.
func (o *Orchestrator) Stop(guildID string) error {
	p, err := o.registry.Remove(guildID)
	if err != nil {
		return err
	}
	p.Destroy()
	o.leaveVoice(guildID)
	return nil
}

func (o *Orchestrator) SetVolume(guildID string, volume int) (int, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return 0, err
	}
	return p.SetVolume(volume)
}

func (o *Orchestrator) SetLoopMode(guildID string, mode player.LoopMode) error {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return err
	}
	return p.SetLoopMode(mode)
}

func (o *Orchestrator) Shuffle(guildID string) error {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return err
	}
	return p.Shuffle()
}

func (o *Orchestrator) Clear(guildID string) (int, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return 0, err
	}
	return p.ClearQueue()
}

func (o *Orchestrator) RemoveAt(guildID string, pos int) (track.Track, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return track.Track{}, err
	}
	return p.RemoveAt(pos)
}

// QueueSnapshot returns the current track and pending queue for display.
func (o *Orchestrator) QueueSnapshot(guildID string) (*track.Track, []track.Track, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return nil, nil, err
	}
	return p.Current(), p.QueueSnapshot(), nil
}

// NowPlaying returns the current track and its playback position.
func (o *Orchestrator) NowPlaying(guildID string) (*track.Track, int64, error) {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return nil, 0, err
	}
	cur := p.Current()
	if cur == nil {
		return nil, 0, player.ErrNoTrackPlaying
	}
	return cur, p.Position(), nil
}

// VoiceServerUpdate forwards the chat platform's voice credentials for the
// guild to its bound node.
func (o *Orchestrator) VoiceServerUpdate(guildID, sessionID string, event any) error {
	p, err := o.registry.Get(guildID)
	if err != nil {
		return err
	}
	n, ok := p.Node().(NodeHandle)
	if !ok || n == nil {
		return nil
	}
	return n.VoiceUpdate(guildID, sessionID, event)
}

func (o *Orchestrator) leaveVoice(guildID string) {
	if o.voice == nil {
		return
	}
	if err := o.voice.Leave(guildID); err != nil {
		o.log.Warn().Str("guild", guildID).Err(err).Msg("failed to leave voice channel")
	}
}

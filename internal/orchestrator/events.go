package orchestrator

import (
	"context"
	"errors"

	"cadenza/internal/lavalink"
	"cadenza/internal/player"
)

// dispatchLoop drains the shared node event channel and routes each event
// into the owning player's exclusive scope. This is the only goroutine that
// turns node events into player transitions, so transport read loops never
// touch guild state directly.
func (o *Orchestrator) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.nodes.Events():
			if !ok {
				return nil
			}
			o.handleEvent(ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ev lavalink.Event) {
	p, err := o.registry.Get(ev.GuildID)
	if err != nil {
		// Cleanup already ran for this guild; a late event is expected noise.
		o.log.Debug().Str("guild", ev.GuildID).Str("type", string(ev.Type)).Msg("event for unknown guild dropped")
		return
	}

	// Events from a node the guild is no longer bound to are stale.
	if n := p.Node(); n != nil && n.ID() != ev.Node {
		o.log.Debug().Str("guild", ev.GuildID).Str("node", ev.Node).Msg("event from unbound node dropped")
		return
	}

	switch ev.Type {
	case lavalink.EventPlayerUpdate:
		p.UpdatePosition(ev.Position)

	case lavalink.EventTrackStart:
		if o.notifier != nil {
			if cur := p.Current(); cur != nil {
				o.notifier.NowPlaying(ev.GuildID, p.TextChannelID(), *cur)
			}
		}

	case lavalink.EventTrackEnd:
		switch ev.Reason {
		case lavalink.EndReasonFinished:
			if _, err := p.HandleTrackFinished(); err != nil && !errors.Is(err, player.ErrPlayerDestroyed) {
				o.log.Error().Str("guild", ev.GuildID).Err(err).Msg("advance after track end failed")
			}
		case lavalink.EndReasonLoadFailed:
			o.advanceAfterFailure(p, ev.GuildID, "track failed to load")
		default:
			// stopped / replaced / cleanup: we caused this end ourselves, the
			// queue was already advanced (or flushed) on the command path.
		}

	case lavalink.EventTrackException:
		o.advanceAfterFailure(p, ev.GuildID, ev.Error)

	case lavalink.EventTrackStuck:
		o.advanceAfterFailure(p, ev.GuildID, "track stuck")

	case lavalink.EventWebSocketClosed:
		// The platform closed the guild's voice stream; the session cannot
		// continue without a fresh join.
		o.log.Warn().Str("guild", ev.GuildID).Int("code", ev.Code).Bool("by_remote", ev.ByRemote).Msg("voice stream closed")
		o.destroySession(p, "voice connection closed")
	}
}

func (o *Orchestrator) advanceAfterFailure(p *player.Player, guildID, cause string) {
	if _, err := p.HandleTrackException(cause); err != nil && !errors.Is(err, player.ErrPlayerDestroyed) {
		o.log.Error().Str("guild", guildID).Err(err).Msg("advance after track failure failed")
	}
}

// destroySession removes, tears down and notifies. Used for error paths the
// user did not ask for. Removal is identity-checked so a late event keyed to
// an already-replaced session can never tear down its successor.
func (o *Orchestrator) destroySession(p *player.Player, reason string) {
	guildID := p.GuildID()
	if !o.registry.RemoveIf(guildID, p) {
		return
	}
	textChannelID := p.TextChannelID()
	p.Destroy()
	o.leaveVoice(guildID)
	if o.notifier != nil {
		o.notifier.SessionEnded(guildID, textChannelID, reason)
	}
}

// --- failover hooks, wired to the node manager ---

// HandleNodeDown pauses every guild bound to a failed node while the manager
// reconnects. Queue and current track are engine-local, so they ride out the
// outage untouched.
func (o *Orchestrator) HandleNodeDown(nodeID string, guilds []string) {
	for _, g := range guilds {
		if p, err := o.registry.Get(g); err == nil {
			p.SuspendForFailover()
		}
	}
}

// HandleNodeUp resumes every affected guild from its last known current
// track once the node is back. Guilds destroyed during the outage simply no
// longer appear in the registry.
func (o *Orchestrator) HandleNodeUp(nodeID string, guilds []string) {
	n, ok := o.nodes.Node(nodeID)
	if !ok {
		return
	}
	for _, g := range guilds {
		p, err := o.registry.Get(g)
		if err != nil {
			continue
		}
		if err := p.ResumeFromFailover(n); err != nil {
			o.log.Error().Str("guild", g).Str("node", nodeID).Err(err).Msg("failover resume failed")
			o.destroySession(p, "playback could not be restored after a node failure")
		}
	}
}

// HandleNodeLost destroys the sessions of a node whose retry budget ran out.
func (o *Orchestrator) HandleNodeLost(nodeID string, guilds []string) {
	for _, g := range guilds {
		if p, err := o.registry.Get(g); err == nil {
			o.destroySession(p, "audio node lost, session ended")
		}
	}
}

package orchestrator

import (
	"context"
	"time"
)

// sweepLoop reclaims idle sessions on a period instead of per command. The
// expiry check re-validates state under the player's own lock, so a play
// command racing in concurrently always wins over the sweep.
func (o *Orchestrator) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.sweepIdle()
		}
	}
}

func (o *Orchestrator) sweepIdle() {
	for _, p := range o.registry.All() {
		if !p.TryExpire(o.cfg.IdleTimeout) {
			continue
		}
		gid := p.GuildID()
		// Identity-checked removal: a play that slipped in after the expiry
		// replaced the entry, and that fresh session must stay reachable.
		if o.registry.RemoveIf(gid, p) {
			o.leaveVoice(gid)
			o.log.Info().Str("guild", gid).Msg("idle session reclaimed")
		}
	}
}

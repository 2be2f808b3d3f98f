package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"cadenza/internal/player"
)

func init() {
	Register(&Command{
		Sort:         110,
		Name:         "pause",
		Description:  "Pause or resume the current track",
		Category:     "🎵 Music",
		SlashHandler: pauseSlashHandler,
	})
	Register(&Command{
		Sort:         115,
		Name:         "resume",
		Description:  "Resume paused playback",
		Category:     "🎵 Music",
		SlashHandler: resumeSlashHandler,
	})
	Register(&Command{
		Sort:         120,
		Name:         "skip",
		Description:  "Skip the current track",
		Category:     "🎵 Music",
		SlashHandler: skipSlashHandler,
	})
	Register(&Command{
		Sort:         130,
		Name:         "stop",
		Description:  "Stop playback, clear the queue and leave",
		Category:     "🎵 Music",
		SlashHandler: stopSlashHandler,
	})
	Register(&Command{
		Sort:        140,
		Name:        "volume",
		Description: "Set the player volume (0-100)",
		Category:    "🎵 Music",

		SlashHandler: volumeSlashHandler,
		SlashOptions: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "level",
				Description: "Volume from 0 to 100",
				Required:    true,
			},
		},
	})
	Register(&Command{
		Sort:        150,
		Name:        "loop",
		Description: "Set the loop mode",
		Category:    "🎵 Music",

		SlashHandler: loopSlashHandler,
		SlashOptions: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "off, track or queue",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "off", Value: string(player.LoopOff)},
					{Name: "track", Value: string(player.LoopTrack)},
					{Name: "queue", Value: string(player.LoopQueue)},
				},
			},
		},
	})
}

func pauseSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	paused, err := ctx.Orchestrator.TogglePause(i.GuildID)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	if paused {
		_ = respond(s, i, "⏸ Paused playback.")
	} else {
		_ = respond(s, i, "▶️ Resumed playback.")
	}
}

func resumeSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	if err := ctx.Orchestrator.Resume(i.GuildID); err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	_ = respond(s, i, "▶️ Resumed playback.")
}

func skipSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	next, err := ctx.Orchestrator.Skip(i.GuildID)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	if next == nil {
		_ = respond(s, i, "⏭ Skipped. The queue is empty now.")
		return
	}
	_ = respond(s, i, fmt.Sprintf("⏭ Skipped. Now playing: **%s**", next.Title))
}

func stopSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	if err := ctx.Orchestrator.Stop(i.GuildID); err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	_ = respond(s, i, "⏹ Stopped playback and left the voice channel.")
}

func volumeSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	opts := optionMap(i)
	level := 0
	if opt, ok := opts["level"]; ok {
		level = int(opt.IntValue())
	}

	stored, err := ctx.Orchestrator.SetVolume(i.GuildID, level)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}

	if err := ctx.Storage.SetDefaultVolume(i.GuildID, stored); err != nil {
		ctx.Log.Warn().Err(err).Str("guild", i.GuildID).Msg("failed to persist volume")
	}
	_ = respond(s, i, fmt.Sprintf("🔊 Volume set to `%d%%`", stored))
}

func loopSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	opts := optionMap(i)
	mode := player.LoopOff
	if opt, ok := opts["mode"]; ok {
		mode = player.LoopMode(opt.StringValue())
	}

	if err := ctx.Orchestrator.SetLoopMode(i.GuildID, mode); err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}

	if err := ctx.Storage.SetLoopMode(i.GuildID, string(mode)); err != nil {
		ctx.Log.Warn().Err(err).Str("guild", i.GuildID).Msg("failed to persist loop mode")
	}
	_ = respond(s, i, fmt.Sprintf("🔁 Loop mode set to `%s`", mode))
}

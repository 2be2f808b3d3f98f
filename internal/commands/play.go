package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"cadenza/internal/player"
	"cadenza/internal/storage"
)

func init() {
	Register(&Command{
		Sort:        100,
		Name:        "play",
		Description: "Play a song or add it to the queue",
		Category:    "🎵 Music",

		SlashHandler: playSlashHandler,
		SlashOptions: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Song name or link",
				Required:    true,
			},
		},
	})
}

func playSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate
	guildID := i.GuildID
	member := i.Member

	opts := optionMap(i)
	query := ""
	if opt, ok := opts["query"]; ok {
		query = opt.StringValue()
	}
	if query == "" {
		_ = respondEphemeral(s, i, "❌ A song name or link is required.")
		return
	}

	voiceChannelID, err := findUserVoiceChannel(s, guildID, member.User.ID)
	if err != nil {
		_ = respondEphemeral(s, i, "🔈 You need to be in a voice channel to play music.")
		return
	}

	if err := respondDeferred(s, i); err != nil {
		return
	}

	cmdCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := ctx.Orchestrator.Play(cmdCtx, guildID, voiceChannelID, i.ChannelID, query, member.User.ID)
	if err != nil {
		followUp(s, i, errorMessage(err))
		return
	}
	if result.NoResults() {
		followUp(s, i, fmt.Sprintf("🔍 No tracks found for: `%s`", query))
		return
	}

	if result.Started {
		applyStoredSettings(ctx, guildID)
	}

	first := result.Tracks[0]
	switch {
	case result.PlaylistName != "":
		followUp(s, i, fmt.Sprintf("🎶 Added playlist **%s** with `%d` tracks to the queue.", result.PlaylistName, len(result.Tracks)))
	case result.Started:
		followUp(s, i, fmt.Sprintf("🎵 Playing: **%s** (%s)", first.Title, first.DurationString()))
	default:
		followUp(s, i, fmt.Sprintf("🎶 Added to queue at position `%d`: **%s**", result.Position, first.Title))
	}

	for _, t := range result.Tracks {
		if err := ctx.Storage.AppendTrackToHistory(guildID, storage.TrackHistoryRecord{
			Title:     t.Title,
			Author:    t.Author,
			URI:       t.URI,
			Requester: t.Requester,
			PlayedAt:  time.Now(),
		}); err != nil {
			ctx.Log.Warn().Err(err).Str("guild", guildID).Msg("failed to record track history")
		}
	}
}

// applyStoredSettings restores the guild's persisted volume and loop mode on
// a freshly started session.
func applyStoredSettings(ctx *SlashContext, guildID string) {
	settings, err := ctx.Storage.GetSettings(guildID)
	if err != nil {
		ctx.Log.Warn().Err(err).Str("guild", guildID).Msg("failed to load guild settings")
		return
	}
	if settings.DefaultVolume > 0 {
		if _, err := ctx.Orchestrator.SetVolume(guildID, settings.DefaultVolume); err != nil {
			ctx.Log.Warn().Err(err).Str("guild", guildID).Msg("failed to apply stored volume")
		}
	}
	if settings.LoopMode != "" {
		if err := ctx.Orchestrator.SetLoopMode(guildID, player.LoopMode(settings.LoopMode)); err != nil {
			ctx.Log.Warn().Err(err).Str("guild", guildID).Msg("failed to apply stored loop mode")
		}
	}
}

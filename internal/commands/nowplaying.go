package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

func init() {
	Register(&Command{
		Sort:         240,
		Name:         "nowplaying",
		Description:  "Show the currently playing track",
		Category:     "🎵 Music",
		SlashHandler: nowPlayingSlashHandler,
	})
	Register(&Command{
		Sort:         250,
		Name:         "history",
		Description:  "Show recently played tracks",
		Category:     "🎵 Music",
		SlashHandler: historySlashHandler,
	})
}

func nowPlayingSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	current, position, err := ctx.Orchestrator.NowPlaying(i.GuildID)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: fmt.Sprintf("**%s**", current.Title),
		Color:       embedColor,
	}
	if current.Author != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Artist", Value: current.Author, Inline: true})
	}
	if current.Length > 0 {
		pos := time.Duration(position) * time.Millisecond
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Duration",
			Value:  fmt.Sprintf("%s / %s", formatDuration(pos), current.DurationString()),
			Inline: true,
		})
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Progress",
			Value: progressBar(position, current.Length),
		})
	}
	if current.URI != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "URL", Value: fmt.Sprintf("[Link](%s)", current.URI), Inline: true})
	}
	if current.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: current.ArtworkURL}
	}

	_ = respondEmbed(s, i, embed)
}

func historySlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	records, err := ctx.Storage.FetchTrackHistory(i.GuildID)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	if len(records) == 0 {
		_ = respondEphemeral(s, i, "📭 Nothing has been played here yet.")
		return
	}

	var lines []string
	for idx := len(records) - 1; idx >= 0; idx-- {
		r := records[idx]
		lines = append(lines, fmt.Sprintf("**%s** — %s (<t:%d:R>)", r.Title, r.Author, r.PlayedAt.Unix()))
	}

	_ = respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "🕘 Recently Played",
		Description: strings.Join(lines, "\n"),
		Color:       embedColor,
	})
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func progressBar(position, length int64) string {
	if length <= 0 {
		return ""
	}
	steps := int(position * 20 / length)
	if steps > 20 {
		steps = 20
	}
	return strings.Repeat("▬", steps) + "🔘" + strings.Repeat("▬", 20-steps)
}

package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const queueDisplayLimit = 10

func init() {
	Register(&Command{
		Sort:         200,
		Name:         "queue",
		Description:  "Show the current queue",
		Category:     "🎵 Music",
		SlashHandler: queueSlashHandler,
	})
	Register(&Command{
		Sort:         210,
		Name:         "shuffle",
		Description:  "Shuffle the queue",
		Category:     "🎵 Music",
		SlashHandler: shuffleSlashHandler,
	})
	Register(&Command{
		Sort:         220,
		Name:         "clear",
		Description:  "Clear the queue",
		Category:     "🎵 Music",
		SlashHandler: clearSlashHandler,
	})
	Register(&Command{
		Sort:        230,
		Name:        "remove",
		Description: "Remove a track from the queue",
		Category:    "🎵 Music",

		SlashHandler: removeSlashHandler,
		SlashOptions: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Queue position to remove (1 is next up)",
				Required:    true,
			},
		},
	})
}

func queueSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	current, pending, err := ctx.Orchestrator.QueueSnapshot(i.GuildID)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	if current == nil && len(pending) == 0 {
		_ = respondEphemeral(s, i, "📭 The queue is empty.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "🎵 Current Queue",
		Color: embedColor,
	}

	if current != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Now Playing",
			Value: fmt.Sprintf("**%s** (%s)", current.String(), current.DurationString()),
		})
	}

	if len(pending) > 0 {
		var lines []string
		for idx, t := range pending {
			if idx == queueDisplayLimit {
				break
			}
			lines = append(lines, fmt.Sprintf("`%d.` **%s** (%s)", idx+1, t.Title, t.DurationString()))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Up Next (%d tracks)", len(pending)),
			Value: strings.Join(lines, "\n"),
		})
		if len(pending) > queueDisplayLimit {
			embed.Footer = &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("And %d more tracks...", len(pending)-queueDisplayLimit),
			}
		}
	}

	_ = respondEmbed(s, i, embed)
}

func shuffleSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	if err := ctx.Orchestrator.Shuffle(i.GuildID); err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	_ = respond(s, i, "🔀 Shuffled the queue.")
}

func clearSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	removed, err := ctx.Orchestrator.Clear(i.GuildID)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	_ = respond(s, i, fmt.Sprintf("🗑 Cleared `%d` track(s) from the queue.", removed))
}

func removeSlashHandler(ctx *SlashContext) {
	s, i := ctx.Session, ctx.InteractionCreate

	opts := optionMap(i)
	pos := 0
	if opt, ok := opts["position"]; ok {
		pos = int(opt.IntValue())
	}

	removed, err := ctx.Orchestrator.RemoveAt(i.GuildID, pos-1)
	if err != nil {
		_ = respondEphemeral(s, i, errorMessage(err))
		return
	}
	_ = respond(s, i, fmt.Sprintf("➖ Removed **%s** from the queue.", removed.Title))
}

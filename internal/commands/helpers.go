package commands

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"cadenza/internal/lavalink"
	"cadenza/internal/player"
	"cadenza/internal/queue"
)

const embedColor = 0x5865f2

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
}

func respondDeferred(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, _ = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content})
}

// optionMap flattens interaction options by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

// errorMessage maps engine errors to user-facing text. Nothing here is
// fatal; the worst case is one guild's session ending with a notice.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, player.ErrNotFound), errors.Is(err, player.ErrNoTrackPlaying):
		return "🔇 Nothing is playing right now."
	case errors.Is(err, player.ErrPlayerDestroyed):
		return "🔇 That session just ended, start a new one with /play."
	case errors.Is(err, queue.ErrEmpty):
		return "📭 The queue is empty."
	case errors.Is(err, queue.ErrOutOfRange):
		return "❌ That queue position does not exist."
	case errors.Is(err, lavalink.ErrNoAvailableNode):
		return "⚠️ No audio node is available right now — try again in a moment."
	default:
		return fmt.Sprintf("❌ Error: %v", err)
	}
}

// findUserVoiceChannel returns the voice channel the invoking user sits in.
func findUserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("error retrieving guild: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", errors.New("you need to be in a voice channel")
}

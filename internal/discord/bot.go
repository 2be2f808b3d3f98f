package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"cadenza/internal/commands"
	"cadenza/internal/config"
	"cadenza/internal/lavalink"
	"cadenza/internal/orchestrator"
	"cadenza/internal/storage"
	"cadenza/internal/track"
)

// Bot is the Discord-facing surface: it owns the gateway session, routes
// slash commands into the orchestrator and feeds voice credentials to the
// node manager. It also implements the orchestrator's VoiceConnector and
// Notifier.
type Bot struct {
	dg      *discordgo.Session
	cfg     *config.Config
	storage *storage.Storage
	mgr     *lavalink.Manager
	orch    *orchestrator.Orchestrator

	mu sync.RWMutex
	// voiceSessions holds the bot's own voice session id per guild, captured
	// from VoiceStateUpdate and replayed alongside VoiceServerUpdate.
	voiceSessions map[string]string

	readyOnce sync.Once
	log       zerolog.Logger
}

func NewBot(cfg *config.Config, store *storage.Storage, mgr *lavalink.Manager, log zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	b := &Bot{
		dg:            dg,
		cfg:           cfg,
		storage:       store,
		mgr:           mgr,
		voiceSessions: make(map[string]string),
		log:           log.With().Str("comp", "discord").Logger(),
	}
	b.configureIntents()
	return b, nil
}

// SetOrchestrator wires the playback engine in. Must be called before Run;
// the bot and the orchestrator reference each other, so construction happens
// in two steps.
func (b *Bot) SetOrchestrator(orch *orchestrator.Orchestrator) {
	b.orch = orch
}

// Run opens the gateway session and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)
	b.dg.AddHandler(b.onVoiceServerUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, cleaning up")
	return nil
}

func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages
}

// onReady runs the one-time startup sequence: the node handshake needs the
// bot user id, which is only known once the gateway session is up.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.readyOnce.Do(func() {
		b.mgr.SetUserID(s.State.User.ID)
		b.mgr.Connect()

		if err := b.orch.Start(); err != nil {
			b.log.Error().Err(err).Msg("failed to start orchestrator")
		}

		if err := b.registerCommands(s); err != nil {
			b.log.Error().Err(err).Msg("failed to register slash commands")
		}

		b.log.Info().Str("user", s.State.User.Username).Msg("bot is running")
	})
}

func (b *Bot) registerCommands(s *discordgo.Session) error {
	var defs []*discordgo.ApplicationCommand
	for _, cmd := range commands.All() {
		defs = append(defs, &discordgo.ApplicationCommand{
			Name:        cmd.Name,
			Description: cmd.Description,
			Options:     cmd.SlashOptions,
		})
	}
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", defs)
	return err
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	cmd, ok := commands.Get(name)
	if !ok || cmd.SlashHandler == nil {
		b.log.Warn().Str("command", name).Msg("unknown slash command")
		return
	}

	cmd.SlashHandler(&commands.SlashContext{
		Session:           s,
		InteractionCreate: i,
		Orchestrator:      b.orch,
		Storage:           b.storage,
		Log:               b.log,
	})
}

// onVoiceStateUpdate captures the bot's own voice session id. Discord sends
// it separately from the server credentials and the node needs both.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.UserID != s.State.User.ID {
		return
	}
	b.mu.Lock()
	if vs.ChannelID == "" {
		delete(b.voiceSessions, vs.GuildID)
	} else {
		b.voiceSessions[vs.GuildID] = vs.SessionID
	}
	b.mu.Unlock()
}

// onVoiceServerUpdate forwards Discord's voice server credentials to the
// guild's bound audio node so it can attach to the voice stream.
func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, vsu *discordgo.VoiceServerUpdate) {
	b.mu.RLock()
	sessionID := b.voiceSessions[vsu.GuildID]
	b.mu.RUnlock()
	if sessionID == "" {
		b.log.Warn().Str("guild", vsu.GuildID).Msg("voice server update without a session id")
		return
	}

	event := map[string]string{
		"token":    vsu.Token,
		"guild_id": vsu.GuildID,
		"endpoint": vsu.Endpoint,
	}
	if err := b.orch.VoiceServerUpdate(vsu.GuildID, sessionID, event); err != nil {
		b.log.Error().Str("guild", vsu.GuildID).Err(err).Msg("failed to forward voice credentials")
	}
}

// --- orchestrator.VoiceConnector ---

// Join sends the gateway voice state update without opening discordgo's own
// UDP voice connection; the audio node handles the media plane.
func (b *Bot) Join(guildID, channelID string) error {
	return b.dg.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

func (b *Bot) Leave(guildID string) error {
	return b.dg.ChannelVoiceJoinManual(guildID, "", false, true)
}

// --- orchestrator.Notifier ---

// NowPlaying announces a started track in the guild's text channel, honoring
// a configured announce-channel override.
func (b *Bot) NowPlaying(guildID, textChannelID string, t track.Track) {
	channelID := b.announceChannel(guildID, textChannelID)
	if channelID == "" {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: fmt.Sprintf("**%s** (%s)", t.String(), t.DurationString()),
		Color:       0x5865f2,
	}
	if t.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.ArtworkURL}
	}
	if _, err := b.dg.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.log.Warn().Str("guild", guildID).Err(err).Msg("failed to send now-playing message")
	}
}

// SessionEnded posts a short notice when a session ends for a reason the user
// did not ask for.
func (b *Bot) SessionEnded(guildID, textChannelID, reason string) {
	channelID := b.announceChannel(guildID, textChannelID)
	if channelID == "" {
		return
	}
	msg := fmt.Sprintf("⏹ Playback ended: %s", reason)
	if _, err := b.dg.ChannelMessageSend(channelID, msg); err != nil {
		b.log.Warn().Str("guild", guildID).Err(err).Msg("failed to send session-ended message")
	}
}

func (b *Bot) announceChannel(guildID, fallback string) string {
	settings, err := b.storage.GetSettings(guildID)
	if err == nil && settings.AnnounceChannelID != "" {
		return settings.AnnounceChannelID
	}
	return fallback
}

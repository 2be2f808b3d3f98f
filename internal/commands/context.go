package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"cadenza/internal/orchestrator"
	"cadenza/internal/storage"
)

type SlashContext struct {
	Session           *discordgo.Session
	InteractionCreate *discordgo.InteractionCreate
	Orchestrator      *orchestrator.Orchestrator
	Storage           *storage.Storage
	Log               zerolog.Logger
}

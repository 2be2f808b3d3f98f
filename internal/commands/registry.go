package commands

import (
	"sort"

	"github.com/bwmarrin/discordgo"
)

type Command struct {
	Sort        int
	Name        string
	Description string
	Category    string

	SlashHandler func(ctx *SlashContext)
	SlashOptions []*discordgo.ApplicationCommandOption
}

var commandRegistry = map[string]*Command{}

func Register(cmd *Command) {
	commandRegistry[cmd.Name] = cmd
}

func Get(name string) (*Command, bool) {
	cmd, ok := commandRegistry[name]
	return cmd, ok
}

func All() []*Command {
	list := make([]*Command, 0, len(commandRegistry))
	for _, cmd := range commandRegistry {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Sort < list[j].Sort })
	return list
}

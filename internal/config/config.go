package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`

	// LavalinkNodes lists audio node endpoints as host:port pairs, optionally
	// prefixed with a name: "main@localhost:2333". All nodes share the
	// password unless an entry carries its own after a second colon.
	LavalinkNodes    []string `env:"LAVALINK_NODES" envDefault:"localhost:2333"`
	LavalinkPassword string   `env:"LAVALINK_PASS" envDefault:"youshallnotpass"`
	LavalinkSecure   bool     `env:"LAVALINK_SECURE" envDefault:"false"`

	DefaultVolume int           `env:"DEFAULT_VOLUME" envDefault:"30"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`

	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"10"`
	ReconnectMaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"1m"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`
}

func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// NodeAddr is one parsed audio node endpoint.
type NodeAddr struct {
	Name     string
	Host     string
	Port     int
	Password string
}

// Nodes parses LAVALINK_NODES entries into endpoints. Unnamed entries get
// node-1, node-2, ... in declaration order.
func (c *Config) Nodes() ([]NodeAddr, error) {
	out := make([]NodeAddr, 0, len(c.LavalinkNodes))
	for i, raw := range c.LavalinkNodes {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		name := fmt.Sprintf("node-%d", i+1)
		if at := strings.Index(entry, "@"); at >= 0 {
			name = entry[:at]
			entry = entry[at+1:]
		}

		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid node entry %q, want [name@]host:port[:password]", raw)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid port in node entry %q: %w", raw, err)
		}

		password := c.LavalinkPassword
		if len(parts) == 3 && parts[2] != "" {
			password = parts[2]
		}

		out = append(out, NodeAddr{Name: name, Host: parts[0], Port: port, Password: password})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no audio nodes configured")
	}
	return out, nil
}

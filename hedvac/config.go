package hedvac

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/mongodb"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig             `toml:"log"`
	Bot     BotConfig             `toml:"bot"`
	Backend string                `toml:"backend"`
	DB      database.DBConfig     `toml:"db"`
	Mongo   mongodb.MongoConfig   `toml:"mongo"`
	Hedera  hedera.OperatorConfig `toml:"hedera"`
	Mirror  hedera.MirrorConfig   `toml:"mirror"`
	Deposit DepositConfig         `toml:"deposit"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DepositConfig struct {
	PollSeconds int `toml:"poll_seconds"`
}

func (c *Config) validate() error {
	switch c.Backend {
	case "postgres", "mongodb":
	default:
		return fmt.Errorf("backend must be postgres or mongodb, got %q", c.Backend)
	}
	if c.Hedera.VaultAccount != "" && !hedera.ValidAccountID(c.Hedera.VaultAccount) {
		return fmt.Errorf("invalid vault account %q", c.Hedera.VaultAccount)
	}
	return nil
}

// PollInterval is the deposit poll interval with its default applied.
func (c *Config) PollInterval() time.Duration {
	if c.Deposit.PollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Deposit.PollSeconds) * time.Second
}

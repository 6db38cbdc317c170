package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database"
)

var Stats = discord.SlashCommandCreate{
	Name:        "stats",
	Description: "📊 Show bot and vault status",
}

func StatsHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cursor, err := b.Store.ResumeCursor(ctx)
		if err != nil {
			cursor = "unavailable"
		}
		if cursor == "" {
			cursor = "none yet"
		}

		stats, err := b.Store.Stats(ctx)
		if err != nil {
			stats = &database.Stats{}
		}

		description := fmt.Sprintf("```ansi\n"+
			"\x1b[1;36mVersion:\x1b[0m  %s (%s)\n"+
			"\x1b[1;36mBackend:\x1b[0m  %s\n"+
			"\x1b[1;36mNetwork:\x1b[0m  %s\n"+
			"\x1b[1;36mVault:\x1b[0m    %s\n"+
			"\x1b[1;36mPoll:\x1b[0m     every %s\n"+
			"\x1b[1;36mCursor:\x1b[0m   %s\n"+
			"\n"+
			"\x1b[1;35mAccounts:\x1b[0m %d\n"+
			"\x1b[1;35mRecords:\x1b[0m  %d\n"+
			"\x1b[1;35mRains:\x1b[0m    %d\n"+
			"\x1b[1;35mLoots:\x1b[0m    %d\n"+
			"```",
			b.Version, b.Commit,
			b.Cfg.Backend,
			b.Cfg.Hedera.Network,
			b.Cfg.Hedera.VaultAccount,
			b.Cfg.PollInterval(),
			cursor,
			stats.Accounts, stats.Records, stats.RainEvents, stats.LootEvents,
		)

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📊 Hedvac Status",
				Description: description,
				Color:       hedvac.InfoColor,
				Timestamp:   timePtr(time.Now()),
			}},
		})
	}
}

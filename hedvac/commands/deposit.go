package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database"
)

var Deposit = discord.SlashCommandCreate{
	Name:        "deposit",
	Description: "📥 Get the vault address and your personal deposit memo",
}

func DepositHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		userID := e.User().ID.String()
		if _, err := b.Ledger.Account(ctx, userID); err != nil {
			if errors.Is(err, database.ErrAccountNotFound) {
				return notRegisteredMessage(e)
			}
			return err
		}

		description := fmt.Sprintf("Send HBAR or tokens to the vault account:\n"+
			"```\n%s\n```\n"+
			"**Set the transaction memo to your Discord ID:**\n"+
			"```\n%s\n```\n"+
			"Transfers without this memo cannot be attributed to you and will not be credited.",
			b.Cfg.Hedera.VaultAccount, userID)

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📥 Deposit Instructions",
				Description: description,
				Color:       hedvac.InfoColor,
				Footer: &discord.EmbedFooter{
					Text: "Deposits are credited after consensus, usually within a minute",
				},
			}},
			Flags: discord.MessageFlagEphemeral,
		})
	}
}

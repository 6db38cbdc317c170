package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

var Balance = discord.SlashCommandCreate{
	Name:        "balance",
	Description: "💰 View your ledger balances",
}

func BalanceHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		balances, err := b.Ledger.Balances(ctx, e.User().ID.String())
		if err != nil {
			if errors.Is(err, database.ErrAccountNotFound) {
				return notRegisteredMessage(e)
			}
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "Error",
					Description: "Failed to fetch your balances. Please try again later.",
					Color:       hedvac.ErrorColor,
				}},
				Flags: discord.MessageFlagEphemeral,
			})
		}

		var description strings.Builder
		description.WriteString("```ansi\n")
		shown := 0
		for _, bal := range balances {
			if bal.Amount == 0 {
				continue
			}
			info := displayAsset(ctx, b, bal.Asset)
			description.WriteString(fmt.Sprintf("\x1b[1;36m%-8s\x1b[0m %s\n",
				info.Symbol, ledger.FormatAmount(bal.Amount, info.Decimals)))
			shown++
		}
		if shown == 0 {
			description.WriteString("No holdings yet. Use /deposit to fund your account.\n")
		}
		description.WriteString("```")

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💰 Balance",
				Description: description.String(),
				Color:       hedvac.SuccessColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Requested by %s", e.User().Username),
				},
				Timestamp: timePtr(time.Now()),
			}},
		})
	}
}

func notRegisteredMessage(e *handler.CommandEvent) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "Not Registered",
			Description: "You don't have a ledger account yet. Run `/register` first.",
			Color:       hedvac.WarningColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}

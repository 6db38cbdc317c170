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
	"github.com/hedvacbot/hedvac/hedvac/hedera"
)

var Register = discord.SlashCommandCreate{
	Name:        "register",
	Description: "📒 Open your Hedvac ledger account",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "accountid",
			Description: "Your own Hedera account in shard.realm.num form (optional)",
			Required:    false,
		},
	},
}

func RegisterHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		data := e.SlashCommandInteractionData()
		accountID, hasAccountID := data.OptString("accountid")

		if hasAccountID && !hedera.ValidAccountID(accountID) {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "Invalid Account ID",
					Description: fmt.Sprintf("%q is not a valid Hedera account, expected shard.realm.num.", accountID),
					Color:       hedvac.ErrorColor,
				}},
				Flags: discord.MessageFlagEphemeral,
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		userID := e.User().ID.String()
		_, err := b.Ledger.Register(ctx, userID)
		alreadyRegistered := errors.Is(err, database.ErrAccountExists)
		if err != nil && !alreadyRegistered {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "Error",
					Description: "Failed to create your account. Please try again later.",
					Color:       hedvac.ErrorColor,
				}},
				Flags: discord.MessageFlagEphemeral,
			})
		}

		if hasAccountID {
			if err := b.Ledger.LinkHederaAccount(ctx, userID, accountID); err != nil {
				return err
			}
		}

		if alreadyRegistered {
			description := "You already have a ledger account. Use `/deposit` to fund it."
			if hasAccountID {
				description = fmt.Sprintf("Linked Hedera account `%s` to your existing ledger account.", accountID)
			}
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "Already Registered",
					Description: description,
					Color:       hedvac.WarningColor,
				}},
				Flags: discord.MessageFlagEphemeral,
			})
		}

		description := fmt.Sprintf("Welcome to Hedvac, <@%s>!\n\n"+
			"Use `/deposit` for funding instructions and `/balance` to check your holdings.", e.User().ID)
		if hasAccountID {
			description += fmt.Sprintf("\n\nLinked Hedera account: `%s`", accountID)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📒 Account Created",
				Description: description,
				Color:       hedvac.SuccessColor,
				Footer: &discord.EmbedFooter{
					Text: "Deposits are credited automatically, usually within a minute",
				},
			}},
		})
	}
}

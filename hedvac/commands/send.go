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
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

var Send = discord.SlashCommandCreate{
	Name:        "send",
	Description: "💸 Send funds to another member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "user",
			Description: "The member to send funds to",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "amount",
			Description: "Amount to send, e.g. 12.5",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "asset",
			Description: "HBAR (default) or a token ID like 0.0.12345",
			Required:    false,
		},
		discord.ApplicationCommandOptionString{
			Name:        "message",
			Description: "Optional note attached to the transfer",
			Required:    false,
		},
	},
}

func SendHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		data := e.SlashCommandInteractionData()
		recipient := data.User("user")
		amountStr := data.String("amount")
		assetOpt, _ := data.OptString("asset")
		note, _ := data.OptString("message")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if recipient.Bot {
			return sendError(e, "Bots cannot hold ledger accounts.")
		}

		info, err := resolveAsset(ctx, b, assetOpt)
		if err != nil {
			return sendError(e, err.Error())
		}
		amount, err := ledger.ParseAmount(amountStr, info.Decimals)
		if err != nil {
			return sendError(e, fmt.Sprintf("Invalid amount %q: %v", amountStr, err))
		}

		senderID := e.User().ID.String()
		err = b.Ledger.Transfer(ctx, senderID, recipient.ID.String(), info.Asset, amount, note)
		if err != nil {
			switch {
			case errors.Is(err, database.ErrAccountNotFound):
				return sendError(e, fmt.Sprintf("<@%s> doesn't have a ledger account. They need to run `/register` first.", recipient.ID))
			case errors.Is(err, database.ErrInsufficientFunds):
				return sendError(e, fmt.Sprintf("You don't have %s to send.", formatAsset(info, amount)))
			default:
				return sendError(e, "Transfer failed. Please try again later.")
			}
		}

		description := fmt.Sprintf("Sent **%s** to <@%s>", formatAsset(info, amount), recipient.ID)
		if note != "" {
			description += fmt.Sprintf("\n\n> %s", note)
		}

		go b.DM(recipient.ID.String(), discord.Embed{
			Title: "💸 Funds Received",
			Description: fmt.Sprintf("<@%s> sent you **%s**.%s",
				e.User().ID, formatAsset(info, amount), noteSuffix(note)),
			Color: hedvac.SuccessColor,
		})

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💸 Transfer Complete",
				Description: description,
				Color:       hedvac.SuccessColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Sent by %s", e.User().Username),
				},
				Timestamp: timePtr(time.Now()),
			}},
		})
	}
}

func noteSuffix(note string) string {
	if note == "" {
		return ""
	}
	return fmt.Sprintf("\n\n> %s", note)
}

func sendError(e *handler.CommandEvent, msg string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "Transfer Failed",
			Description: msg,
			Color:       hedvac.ErrorColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

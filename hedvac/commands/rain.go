package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/economy/rain"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

var Rain = discord.SlashCommandCreate{
	Name:        "rain",
	Description: "🌧️ Rain funds on recently active members",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "amount",
			Description: "Total amount to distribute, e.g. 100",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "asset",
			Description: "HBAR (default) or a token ID like 0.0.12345",
			Required:    false,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "recipients",
			Description: "Maximum number of recipients (default 10)",
			Required:    false,
			MinValue:    &[]int{1}[0],
			MaxValue:    &[]int{50}[0],
		},
		discord.ApplicationCommandOptionInt{
			Name:        "window",
			Description: "Activity window in minutes (default 15)",
			Required:    false,
			MinValue:    &[]int{1}[0],
			MaxValue:    &[]int{1440}[0],
		},
		discord.ApplicationCommandOptionString{
			Name:        "message",
			Description: "Optional message shown with the rain",
			Required:    false,
		},
	},
}

func RainHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		data := e.SlashCommandInteractionData()
		amountStr := data.String("amount")
		assetOpt, _ := data.OptString("asset")
		maxRecipients, ok := data.OptInt("recipients")
		if !ok {
			maxRecipients = 10
		}
		windowMinutes, ok := data.OptInt("window")
		if !ok {
			windowMinutes = 15
		}
		message, _ := data.OptString("message")

		if e.GuildID() == nil {
			return rainError(e, "Rain only works inside a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		info, err := resolveAsset(ctx, b, assetOpt)
		if err != nil {
			return rainError(e, err.Error())
		}
		total, err := ledger.ParseAmount(amountStr, info.Decimals)
		if err != nil {
			return rainError(e, fmt.Sprintf("Invalid amount %q: %v", amountStr, err))
		}

		window := time.Duration(windowMinutes) * time.Minute
		active := b.Activity.ActiveSince(e.GuildID().String(), window)
		creatorID := e.User().ID.String()

		candidates := make([]string, 0, len(active))
		for _, id := range active {
			if id != creatorID {
				candidates = append(candidates, id)
			}
		}
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		if len(candidates) > maxRecipients {
			candidates = candidates[:maxRecipients]
		}

		result, err := b.RainService.Rain(ctx, creatorID, info.Asset, total, candidates, message)
		if err != nil {
			switch {
			case errors.Is(err, rain.ErrNoRecipients):
				return rainError(e, fmt.Sprintf("Nobody with a ledger account was active in the last %d minutes.", windowMinutes))
			case errors.Is(err, rain.ErrAmountTooSmall):
				return rainError(e, "The amount is too small to split between the recipients.")
			case errors.Is(err, database.ErrAccountNotFound):
				return notRegisteredMessage(e)
			case errors.Is(err, database.ErrInsufficientFunds):
				return rainError(e, fmt.Sprintf("You don't have %s to rain.", formatAsset(info, total)))
			default:
				return rainError(e, "Rain failed. Please try again later.")
			}
		}

		go func() {
			for _, id := range result.Recipients {
				b.DM(id, discord.Embed{
					Title: "🌧️ You Got Rained On!",
					Description: fmt.Sprintf("<@%s> rained **%s** on you.%s",
						creatorID, formatAsset(info, result.PerUser), noteSuffix(message)),
					Color: hedvac.SuccessColor,
				})
			}
		}()

		var mentions strings.Builder
		for i, id := range result.Recipients {
			if i == 20 {
				mentions.WriteString(fmt.Sprintf("… and %d more", len(result.Recipients)-i))
				break
			}
			if i > 0 {
				mentions.WriteString(" ")
			}
			mentions.WriteString(fmt.Sprintf("<@%s>", id))
		}

		description := fmt.Sprintf("<@%s> rained **%s** on %d members!\n\n"+
			"Each receives **%s**.\n\n%s",
			creatorID, formatAsset(info, total), len(result.Recipients),
			formatAsset(info, result.PerUser), mentions.String())
		if message != "" {
			description += fmt.Sprintf("\n\n> %s", message)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🌧️ It's Raining!",
				Description: description,
				Color:       hedvac.SuccessColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Active window: %d minutes", windowMinutes),
				},
				Timestamp: timePtr(time.Now()),
			}},
		})
	}
}

func rainError(e *handler.CommandEvent, msg string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "Rain Failed",
			Description: msg,
			Color:       hedvac.ErrorColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

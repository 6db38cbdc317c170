package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/economy/loot"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

var Loot = discord.SlashCommandCreate{
	Name:        "loot",
	Description: "🎁 Drop a loot pot for members to claim",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "amount",
			Description: "Total pot to split between claimers, e.g. 100",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "max_claims",
			Description: "How many members can claim",
			Required:    true,
			MinValue:    &[]int{1}[0],
			MaxValue:    &[]int{100}[0],
		},
		discord.ApplicationCommandOptionString{
			Name:        "asset",
			Description: "HBAR (default) or a token ID like 0.0.12345",
			Required:    false,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "expires",
			Description: "Minutes before the drop expires (default 60)",
			Required:    false,
			MinValue:    &[]int{1}[0],
			MaxValue:    &[]int{10080}[0],
		},
		discord.ApplicationCommandOptionString{
			Name:        "message",
			Description: "Optional message shown with the drop",
			Required:    false,
		},
	},
}

func LootHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		data := e.SlashCommandInteractionData()
		amountStr := data.String("amount")
		maxClaims := data.Int("max_claims")
		assetOpt, _ := data.OptString("asset")
		durationMinutes, ok := data.OptInt("expires")
		if !ok {
			durationMinutes = 60
		}
		message, _ := data.OptString("message")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		info, err := resolveAsset(ctx, b, assetOpt)
		if err != nil {
			return lootError(e, err.Error())
		}
		total, err := ledger.ParseAmount(amountStr, info.Decimals)
		if err != nil {
			return lootError(e, fmt.Sprintf("Invalid amount %q: %v", amountStr, err))
		}

		event, err := b.LootManager.Create(ctx,
			e.User().ID.String(), info.Asset, total, maxClaims,
			time.Duration(durationMinutes)*time.Minute,
			e.Channel().ID().String(), message)
		if err != nil {
			switch {
			case errors.Is(err, loot.ErrAmountTooSmall):
				return lootError(e, "The pot is too small to split between that many claims.")
			case errors.Is(err, database.ErrAccountNotFound):
				return notRegisteredMessage(e)
			case errors.Is(err, database.ErrInsufficientFunds):
				return lootError(e, fmt.Sprintf("You don't have %s to drop.", formatAsset(info, total)))
			default:
				return lootError(e, "Loot drop failed. Please try again later.")
			}
		}

		description := fmt.Sprintf("<@%s> dropped **%s**!\n\n"+
			"First **%d** members to hit the button get **%s** each.\n"+
			"Expires <t:%d:R>.",
			e.User().ID, formatAsset(info, total), maxClaims,
			formatAsset(info, event.AmountPerClaim()), event.ExpiresAt.Unix())
		if message != "" {
			description += fmt.Sprintf("\n\n> %s", message)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🎁 Loot Drop",
				Description: description,
				Color:       hedvac.WarningColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Drop #%d", event.ID),
				},
				Timestamp: timePtr(time.Now()),
			}},
			Components: []discord.ContainerComponent{
				discord.NewActionRow(
					discord.NewPrimaryButton("🎁 Claim", fmt.Sprintf("/loot/%d", event.ID)),
				),
			},
		})
	}
}

func LootButtonHandler(b *hedvac.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		data := e.Data.(discord.ButtonInteractionData)
		idStr := strings.TrimPrefix(data.CustomID(), "/loot/")
		lootID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed loot custom ID %q", data.CustomID())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		claim, err := b.LootManager.Claim(ctx, lootID, e.User().ID.String())
		if err != nil {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "Claim Failed",
					Description: lootClaimError(err),
					Color:       hedvac.ErrorColor,
				}},
				Flags: discord.MessageFlagEphemeral,
			})
		}

		event, err := b.LootManager.Event(ctx, lootID)
		if err != nil {
			return err
		}
		info := displayAsset(ctx, b, event.Asset)

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "🎁 Claimed!",
				Description: fmt.Sprintf("<@%s> grabbed **%s** from drop #%d! (%d/%d claimed)",
					e.User().ID, formatAsset(info, claim.Amount), lootID,
					event.ClaimCount, event.MaxClaims),
				Color: hedvac.SuccessColor,
			}},
		})
	}
}

func lootClaimError(err error) string {
	switch {
	case errors.Is(err, database.ErrAlreadyClaimed):
		return "You already claimed this drop."
	case errors.Is(err, database.ErrLootFull):
		return "Too slow, the drop is empty."
	case errors.Is(err, database.ErrLootClosed), errors.Is(err, database.ErrEventNotFound):
		return "This drop is no longer active."
	case errors.Is(err, database.ErrAccountNotFound):
		return "You need a ledger account to claim. Run `/register` first."
	default:
		return "Claim failed. Please try again."
	}
}

func lootError(e *handler.CommandEvent, msg string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "Loot Drop Failed",
			Description: msg,
			Color:       hedvac.ErrorColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

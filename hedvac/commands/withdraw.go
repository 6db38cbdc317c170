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
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/economy/withdraw"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

var Withdraw = discord.SlashCommandCreate{
	Name:        "withdraw",
	Description: "📤 Withdraw funds to a Hedera account",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "address",
			Description: "Destination account in shard.realm.num form, e.g. 0.0.12345",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "amount",
			Description: "Amount to withdraw, or \"all\"",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "asset",
			Description: "HBAR (default) or a token ID like 0.0.12345",
			Required:    false,
		},
	},
}

func WithdrawHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		data := e.SlashCommandInteractionData()
		address := strings.TrimSpace(data.String("address"))
		amountStr := strings.TrimSpace(data.String("amount"))
		assetOpt, _ := data.OptString("asset")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if !hedera.ValidAccountID(address) {
			return withdrawError(e, fmt.Sprintf("Invalid destination %q, expected shard.realm.num.", address))
		}

		info, err := resolveAsset(ctx, b, assetOpt)
		if err != nil {
			return withdrawError(e, err.Error())
		}

		all := strings.EqualFold(amountStr, "all")
		var amount int64
		if !all {
			amount, err = ledger.ParseAmount(amountStr, info.Decimals)
			if err != nil {
				return withdrawError(e, fmt.Sprintf("Invalid amount %q: %v", amountStr, err))
			}
		}

		userID := e.User().ID.String()
		if _, err := b.Ledger.Account(ctx, userID); err != nil {
			if errors.Is(err, database.ErrAccountNotFound) {
				return notRegisteredMessage(e)
			}
			return err
		}

		amountField := "all"
		amountDisplay := fmt.Sprintf("entire %s balance", info.Symbol)
		if !all {
			amountField = strconv.FormatInt(amount, 10)
			amountDisplay = formatAsset(info, amount)
		}

		feeInfo := &assetInfo{Asset: models.AssetHbar, Symbol: "HBAR", Decimals: models.HbarDecimals}
		description := fmt.Sprintf("You are about to withdraw **%s** to:\n```\n%s\n```\n"+
			"A network fee of **%s** will be charged on top.",
			amountDisplay, address, formatAsset(feeInfo, withdraw.FeeTinybars))

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📤 Confirm Withdrawal",
				Description: description,
				Color:       hedvac.WarningColor,
				Footer: &discord.EmbedFooter{
					Text: "This cannot be undone once sent",
				},
			}},
			Components: []discord.ContainerComponent{
				discord.NewActionRow(
					discord.NewPrimaryButton("Confirm", fmt.Sprintf("/withdraw/confirm/%s/%s/%s/%s",
						userID, address, info.Asset, amountField)),
					discord.NewDangerButton("Cancel", fmt.Sprintf("/withdraw/cancel/%s", userID)),
				),
			},
			Flags: discord.MessageFlagEphemeral,
		})
	}
}

func WithdrawButtonHandler(b *hedvac.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		data := e.Data.(discord.ButtonInteractionData)
		parts := strings.Split(data.CustomID(), "/")
		if len(parts) < 4 {
			return fmt.Errorf("malformed withdraw custom ID %q", data.CustomID())
		}
		action, userID := parts[2], parts[3]

		if userID != e.User().ID.String() {
			return e.CreateMessage(discord.MessageCreate{
				Content: "You cannot use these buttons",
				Flags:   discord.MessageFlagEphemeral,
			})
		}

		if action == "cancel" {
			return e.UpdateMessage(discord.MessageUpdate{
				Embeds: &[]discord.Embed{{
					Title:       "Withdrawal Cancelled",
					Description: "No funds were moved.",
					Color:       hedvac.InfoColor,
				}},
				Components: &[]discord.ContainerComponent{},
			})
		}
		if action != "confirm" || len(parts) != 7 {
			return fmt.Errorf("malformed withdraw custom ID %q", data.CustomID())
		}
		address, asset, amountField := parts[4], parts[5], parts[6]

		req := withdraw.Request{
			DiscordID: userID,
			Address:   address,
			Asset:     asset,
		}
		if amountField == "all" {
			req.All = true
		} else {
			amount, err := strconv.ParseInt(amountField, 10, 64)
			if err != nil {
				return fmt.Errorf("malformed withdraw amount %q", amountField)
			}
			req.Amount = amount
		}

		// Consensus can take a few seconds, past the initial response window.
		if err := e.DeferUpdateMessage(); err != nil {
			return fmt.Errorf("failed to defer message: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		result, err := b.WithdrawService.Withdraw(ctx, req)
		if err != nil {
			return updateWithdrawMessage(e, withdrawFailureEmbed(err, asset))
		}

		info := displayAsset(ctx, b, asset)
		feeInfo := &assetInfo{Asset: models.AssetHbar, Symbol: "HBAR", Decimals: models.HbarDecimals}

		if result.Indeterminate {
			return updateWithdrawMessage(e, discord.Embed{
				Title: "⚠️ Withdrawal Pending",
				Description: fmt.Sprintf("The network did not confirm transaction `%s` in time. "+
					"Your balance has been debited; contact an operator if the funds do not arrive.",
					result.TransactionID),
				Color: hedvac.WarningColor,
			})
		}

		return updateWithdrawMessage(e, discord.Embed{
			Title: "📤 Withdrawal Complete",
			Description: fmt.Sprintf("Sent **%s** to `%s`.\nFee: **%s**\nTransaction: `%s`",
				formatAsset(info, result.Amount), address,
				formatAsset(feeInfo, result.Fee), result.TransactionID),
			Color:     hedvac.SuccessColor,
			Timestamp: timePtr(time.Now()),
		})
	}
}

func withdrawFailureEmbed(err error, asset string) discord.Embed {
	switch {
	case errors.Is(err, hedera.ErrDestinationNotPrepared):
		return discord.Embed{
			Title: "Token Not Associated",
			Description: fmt.Sprintf("The destination account has not associated token `%s`. "+
				"Associate it in your wallet and try again. No funds were deducted.", asset),
			Color: hedvac.ErrorColor,
		}
	case errors.Is(err, database.ErrInsufficientFunds):
		return discord.Embed{
			Title:       "Insufficient Funds",
			Description: "Your balance does not cover the amount plus the network fee.",
			Color:       hedvac.ErrorColor,
		}
	case errors.Is(err, withdraw.ErrInvalidAddress), errors.Is(err, withdraw.ErrInvalidAmount):
		return discord.Embed{
			Title:       "Withdrawal Failed",
			Description: err.Error(),
			Color:       hedvac.ErrorColor,
		}
	default:
		return discord.Embed{
			Title:       "Withdrawal Failed",
			Description: "The transfer could not be sent. No funds were deducted.",
			Color:       hedvac.ErrorColor,
		}
	}
}

func updateWithdrawMessage(e *handler.ComponentEvent, embed discord.Embed) error {
	_, err := e.UpdateInteractionResponse(discord.MessageUpdate{
		Embeds:     &[]discord.Embed{embed},
		Components: &[]discord.ContainerComponent{},
	})
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func withdrawError(e *handler.CommandEvent, msg string) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "Withdrawal Failed",
			Description: msg,
			Color:       hedvac.ErrorColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

const historyPerPage = 10

var History = discord.SlashCommandCreate{
	Name:        "history",
	Description: "📜 View your recent ledger activity",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "limit",
			Description: "How many records to fetch (default 50)",
			Required:    false,
			MinValue:    &[]int{1}[0],
			MaxValue:    &[]int{200}[0],
		},
	},
}

func HistoryHandler(b *hedvac.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		data := e.SlashCommandInteractionData()
		limit, ok := data.OptInt("limit")
		if !ok {
			limit = 50
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		records, err := b.Ledger.History(ctx, e.User().ID.String(), limit)
		if err != nil {
			if errors.Is(err, database.ErrAccountNotFound) {
				return notRegisteredMessage(e)
			}
			return err
		}

		if len(records) == 0 {
			return e.CreateMessage(discord.MessageCreate{
				Embeds: []discord.Embed{{
					Title:       "📜 History",
					Description: "No ledger activity yet.",
					Color:       hedvac.InfoColor,
				}},
				Flags: discord.MessageFlagEphemeral,
			})
		}

		totalPages := int(math.Ceil(float64(len(records)) / float64(historyPerPage)))

		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				// Runs again on later page flips, after the command
				// context is gone.
				pageCtx, pageCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer pageCancel()

				startIdx := page * historyPerPage
				endIdx := min(startIdx+historyPerPage, len(records))

				var description strings.Builder
				for _, rec := range records[startIdx:endIdx] {
					info := displayAsset(pageCtx, b, rec.Asset)
					description.WriteString(fmt.Sprintf("%s **%s** %s%s\n<t:%d:R>%s\n\n",
						reasonEmoji(rec.Reason),
						reasonLabel(rec.Reason),
						amountSign(rec.Reason),
						formatAsset(info, rec.Amount),
						rec.Timestamp.Unix(),
						recordDetail(rec),
					))
				}

				embed.SetTitle("📜 History").
					SetDescription(description.String()).
					SetColor(hedvac.InfoColor).
					SetFooter(fmt.Sprintf("Page %d/%d • %d records", page+1, totalPages, len(records)), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}

func reasonLabel(reason string) string {
	switch reason {
	case models.ReasonDeposit:
		return "Deposit"
	case models.ReasonWithdraw:
		return "Withdrawal"
	case models.ReasonSend:
		return "Sent"
	case models.ReasonReceive:
		return "Received"
	case models.ReasonRain:
		return "Rain"
	case models.ReasonRainRefund:
		return "Rain Refund"
	case models.ReasonLoot:
		return "Loot Drop"
	case models.ReasonLootClaim:
		return "Loot Claim"
	case models.ReasonLootRefund:
		return "Loot Refund"
	default:
		return reason
	}
}

func reasonEmoji(reason string) string {
	switch reason {
	case models.ReasonDeposit:
		return "📥"
	case models.ReasonWithdraw:
		return "📤"
	case models.ReasonSend, models.ReasonReceive:
		return "💸"
	case models.ReasonRain, models.ReasonRainRefund:
		return "🌧️"
	case models.ReasonLoot, models.ReasonLootClaim, models.ReasonLootRefund:
		return "🎁"
	default:
		return "🧾"
	}
}

// amountSign marks the debit reasons so a reader can scan the page without
// knowing the reason taxonomy.
func amountSign(reason string) string {
	switch reason {
	case models.ReasonWithdraw, models.ReasonSend, models.ReasonRain, models.ReasonLoot:
		return "-"
	default:
		return "+"
	}
}

func recordDetail(rec *models.TransactionRecord) string {
	switch {
	case rec.Metadata.Counterparty != "":
		return fmt.Sprintf(" • <@%s>", rec.Metadata.Counterparty)
	case rec.Metadata.Address != "":
		return fmt.Sprintf(" • `%s`", rec.Metadata.Address)
	case rec.Metadata.TransferID != "":
		return fmt.Sprintf(" • `%s`", rec.Metadata.TransferID)
	default:
		return ""
	}
}

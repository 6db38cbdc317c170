package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

// DepositNotifier DMs users when a deposit lands. Delivery runs off the
// polling goroutine and failures are swallowed, crediting never depends on
// Discord being reachable.
type DepositNotifier struct {
	b *hedvac.Bot
}

func NewDepositNotifier(b *hedvac.Bot) *DepositNotifier {
	return &DepositNotifier{b: b}
}

func (n *DepositNotifier) DepositCredited(discordID, asset string, amount int64, transferID string) {
	go n.deliver(discordID, asset, amount, transferID)
}

func (n *DepositNotifier) deliver(discordID, asset string, amount int64, transferID string) {
	symbol := asset
	decimals := 0
	if asset == models.AssetHbar {
		symbol = "HBAR"
		decimals = models.HbarDecimals
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if info, err := n.b.Mirror.TokenInfo(ctx, asset); err == nil {
			if info.Symbol != "" {
				symbol = info.Symbol
			}
			decimals = info.Decimals
		}
	}

	n.b.DM(discordID, discord.Embed{
		Title: "📥 Deposit Credited",
		Description: fmt.Sprintf("**%s %s** has been credited to your account.\nTransfer: `%s`",
			ledger.FormatAmount(amount, decimals), symbol, transferID),
		Color: hedvac.SuccessColor,
	})
}

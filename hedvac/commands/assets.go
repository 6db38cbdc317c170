package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

// assetInfo carries the display metadata for one ledger asset.
type assetInfo struct {
	Asset    string
	Symbol   string
	Decimals int
}

// resolveAsset maps an asset option to its ledger key and display metadata.
// An empty or "hbar" input means the native asset, anything else must be a
// token ID in shard.realm.num form known to the mirror node.
func resolveAsset(ctx context.Context, b *hedvac.Bot, input string) (*assetInfo, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, models.AssetHbar) {
		return &assetInfo{Asset: models.AssetHbar, Symbol: "HBAR", Decimals: models.HbarDecimals}, nil
	}
	if !hedera.ValidAccountID(input) {
		return nil, fmt.Errorf("invalid token ID %q, expected shard.realm.num", input)
	}
	info, err := b.Mirror.TokenInfo(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token %s: %w", input, err)
	}
	symbol := info.Symbol
	if symbol == "" {
		symbol = input
	}
	return &assetInfo{Asset: input, Symbol: symbol, Decimals: info.Decimals}, nil
}

// displayAsset is resolveAsset for output paths where a lookup failure must
// not fail the command. It falls back to the raw asset key.
func displayAsset(ctx context.Context, b *hedvac.Bot, asset string) *assetInfo {
	info, err := resolveAsset(ctx, b, asset)
	if err != nil {
		return &assetInfo{Asset: asset, Symbol: asset, Decimals: 0}
	}
	return info
}

func formatAsset(info *assetInfo, amount int64) string {
	return fmt.Sprintf("%s %s", ledger.FormatAmount(amount, info.Decimals), info.Symbol)
}

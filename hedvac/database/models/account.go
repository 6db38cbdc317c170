package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AssetHbar is the asset symbol of the native asset. All HBAR amounts are
// tinybars; token amounts are in the token's smallest declared unit.
const AssetHbar = "HBAR"

// HbarDecimals is the number of decimal places of the native asset.
const HbarDecimals = 8

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	DiscordID       string    `bun:"discord_id,pk,notnull" bson:"discord_id"`
	HederaAccountID string    `bun:"hedera_account_id" bson:"hedera_account_id"`
	CreatedAt       time.Time `bun:"created_at,notnull" bson:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" bson:"updated_at"`

	// Only populated on the document backend, where balances live on the
	// account document itself. The relational backend keeps them in the
	// balances table.
	Balances map[string]int64 `bun:"-" bson:"balances"`
}

// Balance is one (account, asset) balance row on the relational backend.
type Balance struct {
	bun.BaseModel `bun:"table:balances,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	DiscordID string    `bun:"discord_id,notnull,unique:balances_account_asset"`
	Asset     string    `bun:"asset,notnull,unique:balances_account_asset"`
	Amount    int64     `bun:"amount,notnull,default:0"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// AssetBalance is a backend-agnostic (asset, amount) pair as returned by
// balance listings.
type AssetBalance struct {
	Asset  string
	Amount int64
}

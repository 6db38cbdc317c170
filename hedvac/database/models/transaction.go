package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reason codes written into transaction records. Every balance mutation
// carries exactly one of these.
const (
	ReasonDeposit    = "deposit"
	ReasonWithdraw   = "withdraw"
	ReasonSend       = "send"
	ReasonReceive    = "receive"
	ReasonRain       = "rain"
	ReasonRainRefund = "rain_refund"
	ReasonLoot       = "loot"
	ReasonLootClaim  = "loot_claim"
	ReasonLootRefund = "loot_refund"
)

// TransactionRecord is the append-only audit trail of the internal ledger.
// Records are written in the same commit as the balance change they describe
// and are never updated or deleted.
type TransactionRecord struct {
	bun.BaseModel `bun:"table:transaction_records,alias:tr"`

	ID           string    `bun:"id,pk,notnull" bson:"transaction_id"`
	DiscordID    string    `bun:"discord_id,notnull" bson:"discord_id"`
	Asset        string    `bun:"asset,notnull" bson:"asset"`
	Amount       int64     `bun:"amount,notnull" bson:"amount"`
	BalanceAfter int64     `bun:"balance_after,notnull" bson:"balance_after"`
	Reason       string    `bun:"reason,notnull" bson:"reason"`
	Metadata     TxMeta    `bun:"metadata,type:jsonb" bson:"metadata"`
	Timestamp    time.Time `bun:"timestamp,notnull" bson:"timestamp"`
}

// TxMeta correlates a record to its source event. All fields optional.
type TxMeta struct {
	TransferID   string `json:"transfer_id,omitempty" bson:"transfer_id,omitempty"`
	Counterparty string `json:"counterparty,omitempty" bson:"counterparty,omitempty"`
	EventID      int64  `json:"event_id,omitempty" bson:"event_id,omitempty"`
	Address      string `json:"address,omitempty" bson:"address,omitempty"`
	Note         string `json:"note,omitempty" bson:"note,omitempty"`
}

// ProcessedTransfer marks an external transfer id as applied to the ledger.
// Existence of a row means the corresponding deposit credit happened exactly
// once. Rows are never deleted; mirror-node transaction ids are not reused.
type ProcessedTransfer struct {
	bun.BaseModel `bun:"table:processed_transfers,alias:pt"`

	TransferID  string    `bun:"transfer_id,pk,notnull" bson:"transfer_id"`
	ProcessedAt time.Time `bun:"processed_at,notnull" bson:"processed_at"`
}

// Setting is a key/value row used for process-wide state such as the deposit
// poller's resume cursor.
type Setting struct {
	bun.BaseModel `bun:"table:bot_settings,alias:bs"`

	Key   string `bun:"key,pk,notnull" bson:"key"`
	Value string `bun:"value" bson:"value"`
}

// SettingResumeCursor holds the consensus timestamp of the newest external
// transfer the deposit poller has fully applied.
const SettingResumeCursor = "resume_cursor"

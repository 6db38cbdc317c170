package database

import (
	"context"
	"errors"
	"time"

	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

// Sentinel errors shared by every backend. Callers branch on these with
// errors.Is and must never see a backend-specific error for one of these
// conditions.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already registered")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateTransfer = errors.New("transfer already processed")
	ErrAlreadyClaimed    = errors.New("loot already claimed by user")
	ErrLootClosed        = errors.New("loot event is not active")
	ErrLootFull          = errors.New("loot event claim capacity reached")
	ErrEventNotFound     = errors.New("event not found")
)

// CreditEntry is one credit leg of a multi-account distribution.
type CreditEntry struct {
	DiscordID string
	Amount    int64
	Reason    string
	Meta      models.TxMeta
}

// Store is the persistence boundary of the ledger. Two production backends
// exist, one relational and one document-based, plus an in-memory one for
// tests. All mutations are atomic per call: a balance change and its
// transaction record land together or not at all.
type Store interface {
	// Accounts.
	RegisterAccount(ctx context.Context, discordID string) (*models.Account, error)
	GetAccount(ctx context.Context, discordID string) (*models.Account, error)
	// LinkHederaAccount stores the user's own on-chain account id for
	// display purposes. It does not affect deposit attribution.
	LinkHederaAccount(ctx context.Context, discordID, hederaAccountID string) error
	// GetBalance reads one asset balance. Unknown identities and assets
	// read as 0, never as an error.
	GetBalance(ctx context.Context, discordID, asset string) (int64, error)
	AssetBalances(ctx context.Context, discordID string) ([]models.AssetBalance, error)

	// Balance mutations. Credit creates the balance row/field when missing.
	// Debit fails with ErrInsufficientFunds without mutating anything when
	// the balance is short; the guard and the subtraction are a single
	// atomic operation.
	Credit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error)
	Debit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error)

	// History returns the newest records first.
	History(ctx context.Context, discordID string, limit int) ([]*models.TransactionRecord, error)

	// Deposit idempotency. CreditDeposit marks transferID processed and
	// credits the account; a transfer id seen before yields
	// ErrDuplicateTransfer and no credit.
	CreditDeposit(ctx context.Context, transferID, discordID, asset string, amount int64) (*models.TransactionRecord, error)

	// Poller resume cursor, a mirror-node consensus timestamp string.
	// Empty string means no cursor has been stored yet.
	ResumeCursor(ctx context.Context) (string, error)
	SetResumeCursor(ctx context.Context, cursor string) error

	// Distributions. DistributeRain debits the creator and credits every
	// entry in one atomic operation.
	CreateRainEvent(ctx context.Context, event *models.RainEvent) error
	DistributeRain(ctx context.Context, creatorID, asset string, total int64, entries []CreditEntry, creatorMeta models.TxMeta) error
	// DeleteRainEvent removes an event whose distribution never landed.
	DeleteRainEvent(ctx context.Context, id int64) error

	CreateLootEvent(ctx context.Context, event *models.LootEvent) error
	GetLootEvent(ctx context.Context, id int64) (*models.LootEvent, error)
	// ClaimLoot records the claim and credits the claimer. It fails with
	// ErrAlreadyClaimed on a repeat user, ErrLootClosed when the event is
	// no longer active and ErrLootFull when capacity is reached; the
	// capacity check and the counter advance are one atomic operation.
	ClaimLoot(ctx context.Context, lootID int64, userID string, amount int64) (*models.LootClaim, error)
	// ExpireLootEvents flips active events past their expiry to expired and
	// returns them so the sweep can refund remainders.
	ExpireLootEvents(ctx context.Context, now time.Time) ([]*models.LootEvent, error)
	// CompleteLootEvent moves an event from the given status to completed.
	// Returns false when the event was not in that status, which makes the
	// refund sweep idempotent.
	CompleteLootEvent(ctx context.Context, id int64, fromStatus string) (bool, error)

	// Stats returns row counts for the operator overview.
	Stats(ctx context.Context) (*Stats, error)

	Close(ctx context.Context) error
}

// Stats is the operator overview snapshot.
type Stats struct {
	Accounts   int64
	Records    int64
	RainEvents int64
	LootEvents int64
}

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

// Ledger is the only writer of balances. Every mutation goes through the
// store's guarded operations and produces exactly one transaction record.
type Ledger struct {
	store database.Store
}

func New(store database.Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Register(ctx context.Context, discordID string) (*models.Account, error) {
	return l.store.RegisterAccount(ctx, discordID)
}

func (l *Ledger) LinkHederaAccount(ctx context.Context, discordID, hederaAccountID string) error {
	return l.store.LinkHederaAccount(ctx, discordID, hederaAccountID)
}

func (l *Ledger) Account(ctx context.Context, discordID string) (*models.Account, error) {
	return l.store.GetAccount(ctx, discordID)
}

func (l *Ledger) Balance(ctx context.Context, discordID, asset string) (int64, error) {
	return l.store.GetBalance(ctx, discordID, asset)
}

func (l *Ledger) Balances(ctx context.Context, discordID string) ([]models.AssetBalance, error) {
	return l.store.AssetBalances(ctx, discordID)
}

func (l *Ledger) Credit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return l.store.Credit(ctx, discordID, asset, amount, reason, meta)
}

func (l *Ledger) Debit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return l.store.Debit(ctx, discordID, asset, amount, reason, meta)
}

// Transfer moves funds between two internal accounts, writing a send record
// for the sender and a receive record for the recipient. The debit carries
// the funds guard; a credit failure after a successful debit leaves the
// ledger needing manual reconciliation and is logged as such.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID, asset string, amount int64, note string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if fromID == toID {
		return fmt.Errorf("cannot transfer to self")
	}
	if _, err := l.store.GetAccount(ctx, toID); err != nil {
		return err
	}

	_, err := l.store.Debit(ctx, fromID, asset, amount, models.ReasonSend, models.TxMeta{Counterparty: toID, Note: note})
	if err != nil {
		return err
	}

	_, err = l.store.Credit(ctx, toID, asset, amount, models.ReasonReceive, models.TxMeta{Counterparty: fromID, Note: note})
	if err != nil {
		slog.Error("Transfer credit failed after debit, reconciliation needed",
			slog.String("type", "db"),
			slog.String("from", fromID),
			slog.String("to", toID),
			slog.String("asset", asset),
			slog.Int64("amount", amount),
			slog.Any("error", err),
		)
		return fmt.Errorf("credit leg failed: %w", err)
	}
	return nil
}

func (l *Ledger) History(ctx context.Context, discordID string, limit int) ([]*models.TransactionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return l.store.History(ctx, discordID, limit)
}

// FormatAmount renders a smallest-unit amount with the given number of
// decimals, trimming trailing zeros.
func FormatAmount(amount int64, decimals int) string {
	if decimals <= 0 {
		return strconv.FormatInt(amount, 10)
	}

	negative := amount < 0
	if negative {
		amount = -amount
	}

	div := int64(1)
	for i := 0; i < decimals; i++ {
		div *= 10
	}

	whole := amount / div
	frac := amount % div

	out := strconv.FormatInt(whole, 10)
	if frac > 0 {
		fracStr := fmt.Sprintf("%0*d", decimals, frac)
		fracStr = strings.TrimRight(fracStr, "0")
		out += "." + fracStr
	}
	if negative {
		out = "-" + out
	}
	return out
}

// ParseAmount converts a decimal string into a smallest-unit amount with the
// given number of decimals.
func ParseAmount(input string, decimals int) (int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("empty amount")
	}

	// A bare sign would survive the whole-part parse when it reads as 0,
	// so reject it up front.
	if input[0] == '-' || input[0] == '+' {
		return 0, fmt.Errorf("amount must be positive")
	}

	parts := strings.SplitN(input, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", input, err)
	}

	div := int64(1)
	for i := 0; i < decimals; i++ {
		div *= 10
	}
	if whole >= math.MaxInt64/div {
		return 0, fmt.Errorf("amount %q is too large", input)
	}
	out := whole * div

	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > decimals {
			return 0, fmt.Errorf("amount %q has more than %d decimal places", input, decimals)
		}
		frac += strings.Repeat("0", decimals-len(frac))
		fracVal, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", input, err)
		}
		out += fracVal
	}
	return out, nil
}

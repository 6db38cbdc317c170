package withdraw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

// FeeTinybars is the flat withdrawal fee, charged in the native asset for
// every withdrawal regardless of the asset withdrawn.
const FeeTinybars int64 = 15_000_000

var (
	ErrInvalidAddress = errors.New("invalid destination address")
	ErrInvalidAmount  = errors.New("withdrawal amount must be positive")
)

// Request is one withdrawal. All resolves to the full withdrawable balance:
// balance minus fee for the native asset, the full token balance otherwise.
type Request struct {
	DiscordID string
	Address   string
	Asset     string
	Amount    int64
	All       bool
}

// Result reports what was sent. Indeterminate marks a transfer whose network
// outcome could not be confirmed; it is treated as spent.
type Result struct {
	TransactionID string
	Amount        int64
	Fee           int64
	Indeterminate bool
}

// Service executes withdrawals. The external transfer always happens before
// the ledger debit, so a failed send never costs the user anything; the
// price of that ordering is that an indeterminate send is debited anyway.
// Withdrawals are serialized per user to keep the execute-then-debit window
// single-file.
type Service struct {
	ledger   *ledger.Ledger
	executor hedera.TransferExecutor
	locks    sync.Map
}

func NewService(l *ledger.Ledger, executor hedera.TransferExecutor) *Service {
	return &Service{ledger: l, executor: executor}
}

func (s *Service) userLock(discordID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(discordID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *Service) Withdraw(ctx context.Context, req Request) (*Result, error) {
	if !hedera.ValidAccountID(req.Address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, req.Address)
	}

	lock := s.userLock(req.DiscordID)
	lock.Lock()
	defer lock.Unlock()

	amount, err := s.resolveAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Asset == models.AssetHbar {
		return s.withdrawHbar(ctx, req, amount)
	}
	return s.withdrawToken(ctx, req, amount)
}

func (s *Service) resolveAmount(ctx context.Context, req Request) (int64, error) {
	if !req.All {
		if req.Amount <= 0 {
			return 0, ErrInvalidAmount
		}
		return req.Amount, nil
	}

	balance, err := s.ledger.Balance(ctx, req.DiscordID, req.Asset)
	if err != nil {
		return 0, err
	}

	amount := balance
	if req.Asset == models.AssetHbar {
		amount = balance - FeeTinybars
	}
	if amount <= 0 {
		return 0, database.ErrInsufficientFunds
	}
	return amount, nil
}

func (s *Service) withdrawHbar(ctx context.Context, req Request, amount int64) (*Result, error) {
	total := amount + FeeTinybars
	balance, err := s.ledger.Balance(ctx, req.DiscordID, models.AssetHbar)
	if err != nil {
		return nil, err
	}
	if balance < total {
		return nil, database.ErrInsufficientFunds
	}

	txID, execErr := s.executor.TransferHbar(ctx, req.Address, amount, "withdrawal")
	result, err := s.settle(execErr, txID, amount)
	if err != nil {
		return nil, err
	}

	meta := models.TxMeta{TransferID: txID, Address: req.Address}
	if _, err := s.ledger.Debit(ctx, req.DiscordID, models.AssetHbar, total, models.ReasonWithdraw, meta); err != nil {
		s.logDebitFailure(req, models.AssetHbar, total, txID, err)
		return nil, fmt.Errorf("transfer sent but debit failed: %w", err)
	}
	return result, nil
}

func (s *Service) withdrawToken(ctx context.Context, req Request, amount int64) (*Result, error) {
	tokenBalance, err := s.ledger.Balance(ctx, req.DiscordID, req.Asset)
	if err != nil {
		return nil, err
	}
	if tokenBalance < amount {
		return nil, database.ErrInsufficientFunds
	}

	// The fee is charged in the native asset even for token withdrawals.
	hbarBalance, err := s.ledger.Balance(ctx, req.DiscordID, models.AssetHbar)
	if err != nil {
		return nil, err
	}
	if hbarBalance < FeeTinybars {
		return nil, fmt.Errorf("%w: fee requires %d tinybars", database.ErrInsufficientFunds, FeeTinybars)
	}

	txID, execErr := s.executor.TransferToken(ctx, req.Asset, req.Address, amount, "withdrawal")
	result, err := s.settle(execErr, txID, amount)
	if err != nil {
		return nil, err
	}

	meta := models.TxMeta{TransferID: txID, Address: req.Address}
	if _, err := s.ledger.Debit(ctx, req.DiscordID, req.Asset, amount, models.ReasonWithdraw, meta); err != nil {
		s.logDebitFailure(req, req.Asset, amount, txID, err)
		return nil, fmt.Errorf("transfer sent but debit failed: %w", err)
	}
	if _, err := s.ledger.Debit(ctx, req.DiscordID, models.AssetHbar, FeeTinybars, models.ReasonWithdraw, meta); err != nil {
		s.logDebitFailure(req, models.AssetHbar, FeeTinybars, txID, err)
		return nil, fmt.Errorf("transfer sent but fee debit failed: %w", err)
	}
	return result, nil
}

// settle interprets the execution outcome. Only definite success and the
// indeterminate case proceed to the debit.
func (s *Service) settle(execErr error, txID string, amount int64) (*Result, error) {
	switch {
	case execErr == nil:
		return &Result{TransactionID: txID, Amount: amount, Fee: FeeTinybars}, nil
	case errors.Is(execErr, hedera.ErrIndeterminate):
		slog.Warn("Withdrawal outcome unknown, treating as sent",
			slog.String("type", "sys"),
			slog.String("transaction_id", txID),
			slog.Int64("amount", amount),
		)
		return &Result{TransactionID: txID, Amount: amount, Fee: FeeTinybars, Indeterminate: true}, nil
	default:
		return nil, execErr
	}
}

func (s *Service) logDebitFailure(req Request, asset string, amount int64, txID string, err error) {
	slog.Error("Withdrawal sent but debit failed, reconciliation needed",
		slog.String("type", "db"),
		slog.String("discord_id", req.DiscordID),
		slog.String("asset", asset),
		slog.Int64("amount", amount),
		slog.String("transaction_id", txID),
		slog.Any("error", err),
	)
}

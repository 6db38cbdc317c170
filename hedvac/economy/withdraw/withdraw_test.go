package withdraw

import (
	"context"
	"errors"
	"testing"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/memstore"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
)

type fakeExecutor struct {
	hbarCalls  int
	tokenCalls int
	err        error
}

func (f *fakeExecutor) TransferHbar(_ context.Context, _ string, _ int64, _ string) (string, error) {
	f.hbarCalls++
	return "0.0.50-1700000000-000000001", f.err
}

func (f *fakeExecutor) TransferToken(_ context.Context, _, _ string, _ int64, _ string) (string, error) {
	f.tokenCalls++
	return "0.0.50-1700000000-000000002", f.err
}

func setup(t *testing.T, hbar, token int64) (*Service, *ledger.Ledger, *fakeExecutor) {
	t.Helper()
	ctx := context.Background()
	store := memstore.NewStore()
	if _, err := store.RegisterAccount(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	l := ledger.New(store)
	if hbar > 0 {
		if _, err := l.Credit(ctx, "alice", models.AssetHbar, hbar, models.ReasonDeposit, models.TxMeta{}); err != nil {
			t.Fatal(err)
		}
	}
	if token > 0 {
		if _, err := l.Credit(ctx, "alice", "0.0.7777", token, models.ReasonDeposit, models.TxMeta{}); err != nil {
			t.Fatal(err)
		}
	}
	exec := &fakeExecutor{}
	return NewService(l, exec), l, exec
}

func TestWithdrawHbarDebitsAmountPlusFee(t *testing.T) {
	ctx := context.Background()
	svc, l, exec := setup(t, 500_000_000, 0)

	result, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     models.AssetHbar,
		Amount:    100_000_000,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Amount != 100_000_000 || result.Fee != FeeTinybars {
		t.Errorf("result = %+v", result)
	}
	if exec.hbarCalls != 1 {
		t.Errorf("executor called %d times", exec.hbarCalls)
	}

	balance, _ := l.Balance(ctx, "alice", models.AssetHbar)
	want := 500_000_000 - 100_000_000 - FeeTinybars
	if balance != want {
		t.Errorf("balance = %d, want %d", balance, want)
	}
}

func TestWithdrawAllLeavesZero(t *testing.T) {
	ctx := context.Background()
	svc, l, _ := setup(t, 500_000_000, 0)

	result, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     models.AssetHbar,
		All:       true,
	})
	if err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if result.Amount != 500_000_000-FeeTinybars {
		t.Errorf("amount = %d, want balance minus fee", result.Amount)
	}

	balance, _ := l.Balance(ctx, "alice", models.AssetHbar)
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestWithdrawFailureLeavesBalanceUntouched(t *testing.T) {
	ctx := context.Background()
	svc, l, exec := setup(t, 500_000_000, 0)
	exec.err = errors.New("network down")

	_, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     models.AssetHbar,
		Amount:    100_000_000,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	balance, _ := l.Balance(ctx, "alice", models.AssetHbar)
	if balance != 500_000_000 {
		t.Errorf("balance = %d, want untouched 500000000", balance)
	}
}

func TestWithdrawIndeterminateIsDebited(t *testing.T) {
	ctx := context.Background()
	svc, l, exec := setup(t, 500_000_000, 0)
	exec.err = hedera.ErrIndeterminate

	result, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     models.AssetHbar,
		Amount:    100_000_000,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !result.Indeterminate {
		t.Error("expected indeterminate result")
	}

	balance, _ := l.Balance(ctx, "alice", models.AssetHbar)
	want := 500_000_000 - 100_000_000 - FeeTinybars
	if balance != want {
		t.Errorf("balance = %d, want %d", balance, want)
	}
}

func TestWithdrawTokenNotAssociatedNoDebit(t *testing.T) {
	ctx := context.Background()
	svc, l, exec := setup(t, 100_000_000, 5000)
	exec.err = hedera.ErrDestinationNotPrepared

	_, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     "0.0.7777",
		Amount:    1000,
	})
	if !errors.Is(err, hedera.ErrDestinationNotPrepared) {
		t.Fatalf("expected ErrDestinationNotPrepared, got %v", err)
	}

	token, _ := l.Balance(ctx, "alice", "0.0.7777")
	hbar, _ := l.Balance(ctx, "alice", models.AssetHbar)
	if token != 5000 || hbar != 100_000_000 {
		t.Errorf("balances token=%d hbar=%d, want untouched", token, hbar)
	}
}

func TestWithdrawTokenChargesHbarFee(t *testing.T) {
	ctx := context.Background()
	svc, l, _ := setup(t, 100_000_000, 5000)

	result, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     "0.0.7777",
		Amount:    1000,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Amount != 1000 {
		t.Errorf("amount = %d", result.Amount)
	}

	token, _ := l.Balance(ctx, "alice", "0.0.7777")
	hbar, _ := l.Balance(ctx, "alice", models.AssetHbar)
	if token != 4000 {
		t.Errorf("token balance = %d, want 4000", token)
	}
	if hbar != 100_000_000-FeeTinybars {
		t.Errorf("hbar balance = %d, want fee deducted", hbar)
	}
}

func TestWithdrawTokenWithoutFeeBalance(t *testing.T) {
	ctx := context.Background()
	svc, _, exec := setup(t, FeeTinybars-1, 5000)

	_, err := svc.Withdraw(ctx, Request{
		DiscordID: "alice",
		Address:   "0.0.1234",
		Asset:     "0.0.7777",
		Amount:    1000,
	})
	if !errors.Is(err, database.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if exec.tokenCalls != 0 {
		t.Error("executor must not be called without fee cover")
	}
}

func TestWithdrawRejections(t *testing.T) {
	ctx := context.Background()
	svc, _, exec := setup(t, 500_000_000, 0)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"bad address", Request{DiscordID: "alice", Address: "1234", Asset: models.AssetHbar, Amount: 100}, ErrInvalidAddress},
		{"zero amount", Request{DiscordID: "alice", Address: "0.0.1234", Asset: models.AssetHbar, Amount: 0}, ErrInvalidAmount},
		{"negative amount", Request{DiscordID: "alice", Address: "0.0.1234", Asset: models.AssetHbar, Amount: -5}, ErrInvalidAmount},
		{"insufficient", Request{DiscordID: "alice", Address: "0.0.1234", Asset: models.AssetHbar, Amount: 600_000_000}, database.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Withdraw(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	if exec.hbarCalls != 0 {
		t.Errorf("executor called %d times on rejected requests", exec.hbarCalls)
	}
}

package rain

import (
	"context"
	"errors"
	"testing"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/memstore"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

func setup(t *testing.T, accounts ...string) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	for _, id := range accounts {
		if _, err := store.RegisterAccount(context.Background(), id); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(store), store
}

func TestRainConservesTotal(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, "creator", "u1", "u2", "u3")
	if _, err := store.Credit(ctx, "creator", models.AssetHbar, 1000, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Rain(ctx, "creator", models.AssetHbar, 100, []string{"u1", "u2", "u3"}, "")
	if err != nil {
		t.Fatalf("rain: %v", err)
	}
	if result.PerUser != 33 || result.Remainder != 1 {
		t.Errorf("per=%d remainder=%d, want 33/1", result.PerUser, result.Remainder)
	}

	sum := int64(0)
	for _, id := range []string{"creator", "u1", "u2", "u3"} {
		balance, _ := store.GetBalance(ctx, id, models.AssetHbar)
		sum += balance
	}
	if sum != 1000 {
		t.Errorf("total across accounts = %d, want 1000", sum)
	}

	creatorBal, _ := store.GetBalance(ctx, "creator", models.AssetHbar)
	if creatorBal != 901 {
		t.Errorf("creator balance = %d, want 901 (1000 - 100 + 1 remainder)", creatorBal)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		balance, _ := store.GetBalance(ctx, id, models.AssetHbar)
		if balance != 33 {
			t.Errorf("%s balance = %d, want 33", id, balance)
		}
	}
}

func TestRainExcludesCreatorAndUnregistered(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, "creator", "u1")
	if _, err := store.Credit(ctx, "creator", models.AssetHbar, 1000, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Rain(ctx, "creator", models.AssetHbar, 100, []string{"creator", "u1", "ghost"}, "")
	if err != nil {
		t.Fatalf("rain: %v", err)
	}
	if len(result.Recipients) != 1 || result.Recipients[0] != "u1" {
		t.Errorf("recipients = %v, want [u1]", result.Recipients)
	}
	if result.PerUser != 100 {
		t.Errorf("per user = %d, want 100", result.PerUser)
	}
}

func TestRainInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, "creator", "u1")
	if _, err := store.Credit(ctx, "creator", models.AssetHbar, 50, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Rain(ctx, "creator", models.AssetHbar, 100, []string{"u1"}, "")
	if !errors.Is(err, database.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := store.GetBalance(ctx, "u1", models.AssetHbar)
	if balance != 0 {
		t.Errorf("recipient credited on failed rain: %d", balance)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RainEvents != 0 {
		t.Errorf("rain event recorded for failed distribution: %d", stats.RainEvents)
	}
}

func TestRainRejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, "creator", "u1", "u2")

	tests := []struct {
		name       string
		total      int64
		recipients []string
		wantErr    error
	}{
		{"zero amount", 0, []string{"u1"}, ErrInvalidAmount},
		{"no recipients", 100, nil, ErrNoRecipients},
		{"only creator", 100, []string{"creator"}, ErrNoRecipients},
		{"amount below count", 1, []string{"u1", "u2"}, ErrAmountTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Rain(ctx, "creator", models.AssetHbar, tt.total, tt.recipients, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

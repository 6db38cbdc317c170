package loot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/memstore"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

func setup(t *testing.T, accounts ...string) (*Manager, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	for _, id := range accounts {
		if _, err := store.RegisterAccount(context.Background(), id); err != nil {
			t.Fatal(err)
		}
	}
	return NewManager(store, time.Hour), store
}

func fund(t *testing.T, store *memstore.Store, id string, amount int64) {
	t.Helper()
	if _, err := store.Credit(context.Background(), id, models.AssetHbar, amount, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatal(err)
	}
}

func TestCreateDebitsCreator(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator")
	fund(t, store, "creator", 1000)

	event, err := m.Create(ctx, "creator", models.AssetHbar, 100, 3, time.Hour, "chan", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if event.AmountPerClaim() != 33 {
		t.Errorf("per claim = %d, want 33", event.AmountPerClaim())
	}

	balance, _ := store.GetBalance(ctx, "creator", models.AssetHbar)
	if balance != 900 {
		t.Errorf("creator balance = %d, want 900", balance)
	}
}

func TestCreateInsufficientFundsClosesEvent(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator", "u1")
	fund(t, store, "creator", 50)

	_, err := m.Create(ctx, "creator", models.AssetHbar, 100, 2, time.Hour, "chan", "")
	if !errors.Is(err, database.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestClaimOncePerUser(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator", "u1")
	fund(t, store, "creator", 1000)

	event, err := m.Create(ctx, "creator", models.AssetHbar, 100, 5, time.Hour, "chan", "")
	if err != nil {
		t.Fatal(err)
	}

	claim, err := m.Claim(ctx, event.ID, "u1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.Amount != 20 {
		t.Errorf("claim amount = %d, want 20", claim.Amount)
	}

	_, err = m.Claim(ctx, event.ID, "u1")
	if !errors.Is(err, database.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	balance, _ := store.GetBalance(ctx, "u1", models.AssetHbar)
	if balance != 20 {
		t.Errorf("u1 balance = %d, want 20 (credited once)", balance)
	}
}

func TestConcurrentClaimsCreditOnce(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator", "u1")
	fund(t, store, "creator", 1000)

	event, err := m.Create(ctx, "creator", models.AssetHbar, 100, 5, time.Hour, "chan", "")
	if err != nil {
		t.Fatal(err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Claim(ctx, event.ID, "u1"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("%d claims succeeded for one user, want 1", succeeded)
	}
	balance, _ := store.GetBalance(ctx, "u1", models.AssetHbar)
	if balance != 20 {
		t.Errorf("u1 balance = %d, want 20", balance)
	}
}

func TestCapacityClosesAndRefundsRemainder(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator", "u1", "u2", "u3")
	fund(t, store, "creator", 1000)

	event, err := m.Create(ctx, "creator", models.AssetHbar, 100, 3, time.Hour, "chan", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := m.Claim(ctx, event.ID, id); err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
	}

	_, err = m.Claim(ctx, event.ID, "creator")
	if !errors.Is(err, database.ErrLootClosed) && !errors.Is(err, database.ErrLootFull) {
		t.Fatalf("expected closed or full, got %v", err)
	}

	// 3 claims of 33 leave a remainder of 1 back with the creator.
	creatorBal, _ := store.GetBalance(ctx, "creator", models.AssetHbar)
	if creatorBal != 901 {
		t.Errorf("creator balance = %d, want 901", creatorBal)
	}

	final, _ := store.GetLootEvent(ctx, event.ID)
	if final.Status != models.EventStatusCompleted {
		t.Errorf("status = %q, want completed", final.Status)
	}
}

func TestSweepRefundsExpired(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator", "u1")
	fund(t, store, "creator", 1000)

	event, err := m.Create(ctx, "creator", models.AssetHbar, 100, 5, -time.Minute, "chan", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Claim(ctx, event.ID, "u1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := m.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// One claim of 20 distributed, 80 refunded.
	creatorBal, _ := store.GetBalance(ctx, "creator", models.AssetHbar)
	if creatorBal != 980 {
		t.Errorf("creator balance = %d, want 980", creatorBal)
	}

	final, _ := store.GetLootEvent(ctx, event.ID)
	if final.Status != models.EventStatusCompleted {
		t.Errorf("status = %q, want completed", final.Status)
	}

	// A second sweep must not refund again.
	if err := m.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	creatorBal, _ = store.GetBalance(ctx, "creator", models.AssetHbar)
	if creatorBal != 980 {
		t.Errorf("creator balance after second sweep = %d, want 980", creatorBal)
	}
}

func TestClaimOnExpiredEvent(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator", "u1")
	fund(t, store, "creator", 1000)

	event, err := m.Create(ctx, "creator", models.AssetHbar, 100, 5, -time.Minute, "chan", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = m.Claim(ctx, event.ID, "u1")
	if !errors.Is(err, database.ErrLootClosed) {
		t.Fatalf("expected ErrLootClosed, got %v", err)
	}
}

func TestCreateRejections(t *testing.T) {
	ctx := context.Background()
	m, store := setup(t, "creator")
	fund(t, store, "creator", 1000)

	tests := []struct {
		name      string
		total     int64
		maxClaims int
		wantErr   error
	}{
		{"zero amount", 0, 3, ErrInvalidAmount},
		{"zero claims", 100, 0, ErrInvalidClaims},
		{"amount below claims", 2, 3, ErrAmountTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, "creator", models.AssetHbar, tt.total, tt.maxClaims, time.Hour, "chan", "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/memstore"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

func newTestLedger(t *testing.T, accounts ...string) *Ledger {
	t.Helper()
	store := memstore.NewStore()
	for _, id := range accounts {
		if _, err := store.RegisterAccount(context.Background(), id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	return New(store)
}

func TestDebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, "alice")

	if _, err := l.Credit(ctx, "alice", models.AssetHbar, 100, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := l.Debit(ctx, "alice", models.AssetHbar, 150, models.ReasonWithdraw, models.TxMeta{})
	if !errors.Is(err, database.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, err := l.Balance(ctx, "alice", models.AssetHbar)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance changed on failed debit: got %d, want 100", balance)
	}
}

func TestBalanceUnknownIdentityReadsZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, "alice")

	got, err := l.Balance(ctx, "ghost", models.AssetHbar)
	if err != nil {
		t.Fatalf("balance of unregistered user: %v", err)
	}
	if got != 0 {
		t.Errorf("balance of unregistered user = %d, want 0", got)
	}

	got, err = l.Balance(ctx, "alice", "0.0.5005")
	if err != nil {
		t.Fatalf("balance of unheld asset: %v", err)
	}
	if got != 0 {
		t.Errorf("balance of unheld asset = %d, want 0", got)
	}
}

func TestTransferPairedRecords(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, "alice", "bob")

	if _, err := l.Credit(ctx, "alice", models.AssetHbar, 500, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := l.Transfer(ctx, "alice", "bob", models.AssetHbar, 200, "thanks"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	aliceBal, _ := l.Balance(ctx, "alice", models.AssetHbar)
	bobBal, _ := l.Balance(ctx, "bob", models.AssetHbar)
	if aliceBal != 300 || bobBal != 200 {
		t.Errorf("balances after transfer: alice=%d bob=%d, want 300/200", aliceBal, bobBal)
	}

	aliceHist, _ := l.History(ctx, "alice", 10)
	if len(aliceHist) != 2 || aliceHist[0].Reason != models.ReasonSend {
		t.Fatalf("expected newest alice record to be a send, got %+v", aliceHist)
	}
	if aliceHist[0].Metadata.Counterparty != "bob" {
		t.Errorf("send counterparty = %q, want bob", aliceHist[0].Metadata.Counterparty)
	}

	bobHist, _ := l.History(ctx, "bob", 10)
	if len(bobHist) != 1 || bobHist[0].Reason != models.ReasonReceive {
		t.Fatalf("expected one receive record for bob, got %+v", bobHist)
	}
}

func TestTransferRejections(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, "alice", "bob")

	tests := []struct {
		name    string
		from    string
		to      string
		amount  int64
		wantErr error
	}{
		{"to self", "alice", "alice", 10, nil},
		{"zero amount", "alice", "bob", 0, nil},
		{"unregistered recipient", "alice", "carol", 10, database.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Transfer(ctx, tt.from, tt.to, models.AssetHbar, tt.amount, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, "alice")

	if _, err := l.Credit(ctx, "alice", models.AssetHbar, 100, models.ReasonDeposit, models.TxMeta{}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "alice", models.AssetHbar, 10, models.ReasonWithdraw, models.TxMeta{}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("got %d successful debits of 10 from 100, want 10", succeeded)
	}
	balance, _ := l.Balance(ctx, "alice", models.AssetHbar)
	if balance != 0 {
		t.Errorf("final balance = %d, want 0", balance)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   int64
		decimals int
		want     string
	}{
		{150000000, 8, "1.5"},
		{100000000, 8, "1"},
		{1, 8, "0.00000001"},
		{0, 8, "0"},
		{-250000000, 8, "-2.5"},
		{42, 0, "42"},
		{1234, 2, "12.34"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		decimals int
		want     int64
		wantErr  bool
	}{
		{"1.5", 8, 150000000, false},
		{"1", 8, 100000000, false},
		{"0.00000001", 8, 1, false},
		{"12.34", 2, 1234, false},
		{"1.123456789", 8, 0, true},
		{"-1", 8, 0, true},
		{"-0.5", 8, 0, true},
		{"+1", 8, 0, true},
		{"92233720369", 8, 0, true},
		{"", 8, 0, true},
		{"abc", 8, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.input, tt.decimals)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q, %d): expected error", tt.input, tt.decimals)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q, %d): %v", tt.input, tt.decimals, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q, %d) = %d, want %d", tt.input, tt.decimals, got, tt.want)
		}
	}
}

package listener

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/hedvacbot/hedvac/hedvac/database/memstore"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
)

const vault = "0.0.50"

type fakeMirror struct {
	txs   []hedera.MirrorTransaction
	calls int
}

func (f *fakeMirror) TransfersTo(_ context.Context, _, afterCursor string) ([]hedera.MirrorTransaction, error) {
	f.calls++
	var out []hedera.MirrorTransaction
	for _, tx := range f.txs {
		if compareTimestamps(tx.ConsensusTimestamp, afterCursor) > 0 {
			out = append(out, tx)
		}
	}
	return out, nil
}

func memo(discordID string) string {
	return base64.StdEncoding.EncodeToString([]byte(discordID))
}

func depositTx(txID, ts, memoB64 string, amount int64) hedera.MirrorTransaction {
	return hedera.MirrorTransaction{
		TransactionID:      txID,
		ConsensusTimestamp: ts,
		Name:               "CRYPTOTRANSFER",
		Result:             "SUCCESS",
		MemoBase64:         memoB64,
		Transfers: []hedera.AccountAmount{
			{Account: "0.0.99", Amount: -amount},
			{Account: vault, Amount: amount},
		},
	}
}

func TestPollCreditsAttributedDeposit(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	if _, err := store.RegisterAccount(ctx, "111222333"); err != nil {
		t.Fatal(err)
	}

	mirror := &fakeMirror{txs: []hedera.MirrorTransaction{
		depositTx("tx-1", "1700000001.000000000", memo("111222333"), 100000000),
	}}
	l := New(store, mirror, vault, time.Minute)

	if err := l.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	balance, err := store.GetBalance(ctx, "111222333", models.AssetHbar)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 100000000 {
		t.Errorf("balance = %d, want 100000000", balance)
	}

	cursor, _ := store.ResumeCursor(ctx)
	if cursor != "1700000001.000000000" {
		t.Errorf("cursor = %q", cursor)
	}
}

func TestPollIdempotentOnRedelivery(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	if _, err := store.RegisterAccount(ctx, "111222333"); err != nil {
		t.Fatal(err)
	}

	tx := depositTx("tx-1", "1700000001.000000000", memo("111222333"), 100000000)
	l := New(store, &fakeMirror{txs: []hedera.MirrorTransaction{tx}}, vault, time.Minute)

	if err := l.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	// Reset the cursor to force redelivery of the same transaction.
	if err := store.SetResumeCursor(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := l.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	balance, _ := store.GetBalance(ctx, "111222333", models.AssetHbar)
	if balance != 100000000 {
		t.Errorf("balance after redelivery = %d, want 100000000 (credited once)", balance)
	}
}

// flakyStore fails the first CreditDeposit without consuming the
// at-most-once marker, the way a store must behave across a transient
// backend error.
type flakyStore struct {
	*memstore.Store
	failures int
	credits  int
}

func (s *flakyStore) CreditDeposit(ctx context.Context, transferID, discordID, asset string, amount int64) (*models.TransactionRecord, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset")
	}
	s.credits++
	return s.Store.CreditDeposit(ctx, transferID, discordID, asset, amount)
}

func TestPollRetriesAfterTransientCreditFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memstore.NewStore(), failures: 1}
	if _, err := store.RegisterAccount(ctx, "111222333"); err != nil {
		t.Fatal(err)
	}

	mirror := &fakeMirror{txs: []hedera.MirrorTransaction{
		depositTx("tx-1", "1700000001.000000000", memo("111222333"), 100000000),
	}}
	l := New(store, mirror, vault, time.Minute)

	if err := l.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if cursor, _ := store.ResumeCursor(ctx); cursor != "" {
		t.Fatalf("cursor advanced past failed transfer: %q", cursor)
	}

	// Next cycle redelivers the transfer and must credit it exactly once.
	if err := l.Poll(ctx); err != nil {
		t.Fatalf("retry poll: %v", err)
	}
	balance, _ := store.GetBalance(ctx, "111222333", models.AssetHbar)
	if balance != 100000000 {
		t.Errorf("balance after retry = %d, want 100000000", balance)
	}
	if store.credits != 1 {
		t.Errorf("credits = %d, want 1", store.credits)
	}
}

func TestPollSkipsUnattributable(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	if _, err := store.RegisterAccount(ctx, "111222333"); err != nil {
		t.Fatal(err)
	}

	txs := []hedera.MirrorTransaction{
		depositTx("tx-1", "1700000001.000000000", "", 100),
		depositTx("tx-2", "1700000002.000000000", base64.StdEncoding.EncodeToString([]byte("hello")), 100),
		depositTx("tx-3", "1700000003.000000000", memo("999888777"), 100),
		depositTx("tx-4", "1700000004.000000000", memo("111222333"), 100),
	}
	l := New(store, &fakeMirror{txs: txs}, vault, time.Minute)

	if err := l.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	balance, _ := store.GetBalance(ctx, "111222333", models.AssetHbar)
	if balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}

	// Skipped transfers still advance the cursor.
	cursor, _ := store.ResumeCursor(ctx)
	if cursor != "1700000004.000000000" {
		t.Errorf("cursor = %q, want 1700000004.000000000", cursor)
	}
}

func TestPollSkipsFailedAndNonTransfer(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	if _, err := store.RegisterAccount(ctx, "111222333"); err != nil {
		t.Fatal(err)
	}

	failed := depositTx("tx-1", "1700000001.000000000", memo("111222333"), 100)
	failed.Result = "INSUFFICIENT_PAYER_BALANCE"
	other := depositTx("tx-2", "1700000002.000000000", memo("111222333"), 100)
	other.Name = "CONSENSUSSUBMITMESSAGE"

	l := New(store, &fakeMirror{txs: []hedera.MirrorTransaction{failed, other}}, vault, time.Minute)
	if err := l.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	balance, _ := store.GetBalance(ctx, "111222333", models.AssetHbar)
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestPollCreditsTokenLegs(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	if _, err := store.RegisterAccount(ctx, "111222333"); err != nil {
		t.Fatal(err)
	}

	tx := hedera.MirrorTransaction{
		TransactionID:      "tx-1",
		ConsensusTimestamp: "1700000001.000000000",
		Name:               "CRYPTOTRANSFER",
		Result:             "SUCCESS",
		MemoBase64:         memo("111222333"),
		Transfers: []hedera.AccountAmount{
			{Account: vault, Amount: 50},
		},
		TokenTransfers: []hedera.TokenAmount{
			{TokenID: "0.0.7777", Account: vault, Amount: 1000},
			{TokenID: "0.0.7777", Account: "0.0.99", Amount: -1000},
		},
	}
	l := New(store, &fakeMirror{txs: []hedera.MirrorTransaction{tx}}, vault, time.Minute)

	if err := l.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	hbar, _ := store.GetBalance(ctx, "111222333", models.AssetHbar)
	token, _ := store.GetBalance(ctx, "111222333", "0.0.7777")
	if hbar != 50 || token != 1000 {
		t.Errorf("balances hbar=%d token=%d, want 50/1000", hbar, token)
	}
}

func TestCursorAdvancesMonotonically(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewStore()
	if err := store.SetResumeCursor(ctx, "1700000005.000000000"); err != nil {
		t.Fatal(err)
	}

	// Mirror returns nothing past the cursor, so it must not move.
	l := New(store, &fakeMirror{}, vault, time.Minute)
	if err := l.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	cursor, _ := store.ResumeCursor(ctx)
	if cursor != "1700000005.000000000" {
		t.Errorf("cursor = %q, want unchanged", cursor)
	}
}

func TestCompareTimestamps(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "1.0", -1},
		{"1.0", "", 1},
		{"1700000001.000000001", "1700000001.000000002", -1},
		{"1700000002.000000000", "1700000001.999999999", 1},
		{"1700000001.5", "1700000001.5", 0},
	}

	for _, tt := range tests {
		if got := compareTimestamps(tt.a, tt.b); got != tt.want {
			t.Errorf("compareTimestamps(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDecodeMemoID(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{memo("123456789"), "123456789", true},
		{memo(" 123456789 "), "123456789", true},
		{memo("abc"), "", false},
		{memo(""), "", false},
		{"not base64!", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := decodeMemoID(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("decodeMemoID(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

package listener

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
)

const (
	defaultPollInterval = 30 * time.Second
	cycleTimeout        = 60 * time.Second
	maxParallelCredits  = 2
)

// MirrorSource is the part of the mirror client the listener reads.
type MirrorSource interface {
	TransfersTo(ctx context.Context, account, afterCursor string) ([]hedera.MirrorTransaction, error)
}

// Notifier receives deposit confirmations. Delivery is best effort and never
// blocks crediting.
type Notifier interface {
	DepositCredited(discordID, asset string, amount int64, transferID string)
}

// Listener polls the mirror node for transfers into the vault and credits
// attributed deposits. Only one cycle runs at a time; a tick that lands while
// the previous cycle is still working is dropped.
type Listener struct {
	store    database.Store
	mirror   MirrorSource
	vault    string
	interval time.Duration
	notifier Notifier

	running  atomic.Bool
	shutdown chan struct{}
	done     sync.WaitGroup
}

func New(store database.Store, mirror MirrorSource, vaultAccount string, interval time.Duration) *Listener {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Listener{
		store:    store,
		mirror:   mirror,
		vault:    vaultAccount,
		interval: interval,
		shutdown: make(chan struct{}),
	}
}

func (l *Listener) SetNotifier(n Notifier) {
	l.notifier = n
}

func (l *Listener) Start() {
	l.done.Add(1)
	go func() {
		defer l.done.Done()

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.runCycle()
			case <-l.shutdown:
				return
			}
		}
	}()
}

func (l *Listener) Shutdown() {
	close(l.shutdown)
	l.done.Wait()
	slog.Info("Deposit listener shutdown completed", slog.String("type", "sys"))
}

func (l *Listener) runCycle() {
	if !l.running.CompareAndSwap(false, true) {
		slog.Warn("Deposit poll still running, skipping tick", slog.String("type", "sys"))
		return
	}
	defer l.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if err := l.Poll(ctx); err != nil {
		slog.Error("Deposit poll failed",
			slog.String("type", "sys"),
			slog.Any("error", err),
		)
	}
}

// Poll runs one polling cycle: fetch transfers after the resume cursor,
// credit every attributable vault credit leg, and advance the cursor past
// the longest fully handled prefix so failed transfers are retried next
// cycle.
func (l *Listener) Poll(ctx context.Context) error {
	cursor, err := l.store.ResumeCursor(ctx)
	if err != nil {
		return err
	}

	txs, err := l.mirror.TransfersTo(ctx, l.vault, cursor)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	results := make([]error, len(txs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelCredits)

	for i, tx := range txs {
		i, tx := i, tx
		group.Go(func() error {
			results[i] = l.processTransaction(groupCtx, tx)
			return nil
		})
	}
	_ = group.Wait()

	advanced := cursor
	for i, tx := range txs {
		if results[i] != nil {
			slog.Error("Failed to process deposit transfer",
				slog.String("type", "sys"),
				slog.String("transaction_id", tx.TransactionID),
				slog.Any("error", results[i]),
			)
			break
		}
		if compareTimestamps(tx.ConsensusTimestamp, advanced) > 0 {
			advanced = tx.ConsensusTimestamp
		}
	}

	if advanced != cursor {
		if err := l.store.SetResumeCursor(ctx, advanced); err != nil {
			return err
		}
	}
	return nil
}

// processTransaction credits every vault credit leg of one mirror
// transaction. Skips are not errors: unsuccessful or non-transfer
// transactions, unattributable memos and unregistered accounts all leave the
// ledger untouched and the cursor free to advance.
func (l *Listener) processTransaction(ctx context.Context, tx hedera.MirrorTransaction) error {
	if tx.Result != "SUCCESS" || tx.Name != "CRYPTOTRANSFER" {
		return nil
	}

	discordID, ok := decodeMemoID(tx.MemoBase64)
	if !ok {
		slog.Debug("Skipping transfer without attributable memo",
			slog.String("type", "sys"),
			slog.String("transaction_id", tx.TransactionID),
		)
		return nil
	}

	for _, leg := range tx.Transfers {
		if leg.Account != l.vault || leg.Amount <= 0 {
			continue
		}
		if err := l.creditLeg(ctx, tx.TransactionID, discordID, models.AssetHbar, leg.Amount); err != nil {
			return err
		}
	}

	for _, leg := range tx.TokenTransfers {
		if leg.Account != l.vault || leg.Amount <= 0 {
			continue
		}
		if err := l.creditLeg(ctx, tx.TransactionID, discordID, leg.TokenID, leg.Amount); err != nil {
			return err
		}
	}
	return nil
}

// creditLeg applies one transfer leg at most once. Markers are keyed per
// (transaction, asset) so a transaction carrying several legs credits each
// exactly once.
func (l *Listener) creditLeg(ctx context.Context, txID, discordID, asset string, amount int64) error {
	transferID := txID + ":" + asset

	record, err := l.store.CreditDeposit(ctx, transferID, discordID, asset, amount)
	if errors.Is(err, database.ErrDuplicateTransfer) {
		return nil
	}
	if errors.Is(err, database.ErrAccountNotFound) {
		slog.Debug("Skipping deposit for unregistered account",
			slog.String("type", "sys"),
			slog.String("discord_id", discordID),
			slog.String("transfer_id", transferID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Deposit credited",
		slog.String("type", "sys"),
		slog.String("discord_id", discordID),
		slog.String("asset", asset),
		slog.Int64("amount", amount),
		slog.String("transfer_id", transferID),
	)

	if l.notifier != nil {
		l.notifier.DepositCredited(discordID, asset, record.Amount, transferID)
	}
	return nil
}

// decodeMemoID extracts a Discord user id from a base64 transfer memo. The
// memo must decode to digits only.
func decodeMemoID(memoBase64 string) (string, bool) {
	if memoBase64 == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(memoBase64)
	if err != nil {
		return "", false
	}

	id := strings.TrimSpace(string(raw))
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

// compareTimestamps orders two consensus timestamps of the form
// "seconds.nanoseconds". An empty string sorts before everything.
func compareTimestamps(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	as, an := splitTimestamp(a)
	bs, bn := splitTimestamp(b)
	if as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	if an < bn {
		return -1
	}
	if an > bn {
		return 1
	}
	return 0
}

func splitTimestamp(ts string) (int64, int64) {
	parts := strings.SplitN(ts, ".", 2)
	sec, _ := strconv.ParseInt(parts[0], 10, 64)
	var nanos int64
	if len(parts) == 2 {
		nanos, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return sec, nanos
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

// Store is the relational backend. Balance mutations use guarded UPDATEs so
// the funds check and the subtraction happen in a single statement.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RegisterAccount(ctx context.Context, discordID string) (*models.Account, error) {
	now := time.Now()
	account := &models.Account{
		DiscordID: discordID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := s.db.NewInsert().
		Model(account).
		On("CONFLICT (discord_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, database.ErrAccountExists
	}
	return account, nil
}

func (s *Store) LinkHederaAccount(ctx context.Context, discordID, hederaAccountID string) error {
	res, err := s.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("hedera_account_id = ?", hederaAccountID).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ?", discordID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return database.ErrAccountNotFound
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, discordID string) (*models.Account, error) {
	account := new(models.Account)
	err := s.db.NewSelect().
		Model(account).
		Where("discord_id = ?", discordID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) GetBalance(ctx context.Context, discordID, asset string) (int64, error) {
	var amount int64
	err := s.db.NewSelect().
		Model((*models.Balance)(nil)).
		Column("amount").
		Where("discord_id = ? AND asset = ?", discordID, asset).
		Scan(ctx, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (s *Store) AssetBalances(ctx context.Context, discordID string) ([]models.AssetBalance, error) {
	if _, err := s.GetAccount(ctx, discordID); err != nil {
		return nil, err
	}

	var rows []models.Balance
	err := s.db.NewSelect().
		Model(&rows).
		Where("discord_id = ?", discordID).
		Order("asset ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	balances := make([]models.AssetBalance, 0, len(rows))
	for _, row := range rows {
		balances = append(balances, models.AssetBalance{Asset: row.Asset, Amount: row.Amount})
	}
	return balances, nil
}

func (s *Store) Credit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	var record *models.TransactionRecord
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = creditTx(ctx, tx, discordID, asset, amount, reason, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) Debit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	var record *models.TransactionRecord
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = debitTx(ctx, tx, discordID, asset, amount, reason, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) History(ctx context.Context, discordID string, limit int) ([]*models.TransactionRecord, error) {
	var records []*models.TransactionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("discord_id = ?", discordID).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreditDeposit(ctx context.Context, transferID, discordID, asset string, amount int64) (*models.TransactionRecord, error) {
	var record *models.TransactionRecord
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		marker := &models.ProcessedTransfer{
			TransferID:  transferID,
			ProcessedAt: time.Now(),
		}
		res, err := tx.NewInsert().
			Model(marker).
			On("CONFLICT (transfer_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return database.ErrDuplicateTransfer
		}

		record, err = creditTx(ctx, tx, discordID, asset, amount, models.ReasonDeposit, models.TxMeta{TransferID: transferID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) ResumeCursor(ctx context.Context) (string, error) {
	setting := new(models.Setting)
	err := s.db.NewSelect().
		Model(setting).
		Where("key = ?", models.SettingResumeCursor).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *Store) SetResumeCursor(ctx context.Context, cursor string) error {
	setting := &models.Setting{Key: models.SettingResumeCursor, Value: cursor}
	_, err := s.db.NewInsert().
		Model(setting).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

func (s *Store) CreateRainEvent(ctx context.Context, event *models.RainEvent) error {
	_, err := s.db.NewInsert().Model(event).Exec(ctx)
	return err
}

func (s *Store) DeleteRainEvent(ctx context.Context, id int64) error {
	_, err := s.db.NewDelete().
		Model((*models.RainEvent)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *Store) DistributeRain(ctx context.Context, creatorID, asset string, total int64, entries []database.CreditEntry, creatorMeta models.TxMeta) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := debitTx(ctx, tx, creatorID, asset, total, models.ReasonRain, creatorMeta); err != nil {
			return err
		}
		for _, entry := range entries {
			if _, err := creditTx(ctx, tx, entry.DiscordID, asset, entry.Amount, entry.Reason, entry.Meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateLootEvent(ctx context.Context, event *models.LootEvent) error {
	_, err := s.db.NewInsert().Model(event).Exec(ctx)
	return err
}

func (s *Store) GetLootEvent(ctx context.Context, id int64) (*models.LootEvent, error) {
	event := new(models.LootEvent)
	err := s.db.NewSelect().
		Model(event).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Store) ClaimLoot(ctx context.Context, lootID int64, userID string, amount int64) (*models.LootClaim, error) {
	claim := &models.LootClaim{
		LootID:    lootID,
		UserID:    userID,
		Amount:    amount,
		ClaimedAt: time.Now(),
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(claim).
			On("CONFLICT (loot_id, user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return database.ErrAlreadyClaimed
		}

		var asset string
		err = tx.NewUpdate().
			Model((*models.LootEvent)(nil)).
			Set("claimed_amount = claimed_amount + ?", amount).
			Set("claim_count = claim_count + 1").
			Where("id = ? AND status = ? AND claim_count < max_claims", lootID, models.EventStatusActive).
			Returning("asset").
			Scan(ctx, &asset)
		if errors.Is(err, sql.ErrNoRows) {
			return claimRejectReason(ctx, tx, lootID)
		}
		if err != nil {
			return err
		}

		_, err = creditTx(ctx, tx, userID, asset, amount, models.ReasonLootClaim, models.TxMeta{EventID: lootID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// claimRejectReason loads the event inside the failing transaction to report
// why the capacity-guarded update matched nothing.
func claimRejectReason(ctx context.Context, tx bun.Tx, lootID int64) error {
	event := new(models.LootEvent)
	err := tx.NewSelect().
		Model(event).
		Where("id = ?", lootID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrEventNotFound
	}
	if err != nil {
		return err
	}
	if event.Status != models.EventStatusActive {
		return database.ErrLootClosed
	}
	return database.ErrLootFull
}

func (s *Store) ExpireLootEvents(ctx context.Context, now time.Time) ([]*models.LootEvent, error) {
	var events []*models.LootEvent
	_, err := s.db.NewUpdate().
		Model(&events).
		Set("status = ?", models.EventStatusExpired).
		Where("status = ? AND expires_at <= ?", models.EventStatusActive, now).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) CompleteLootEvent(ctx context.Context, id int64, fromStatus string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.LootEvent)(nil)).
		Set("status = ?", models.EventStatusCompleted).
		Where("id = ? AND status = ?", id, fromStatus).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *Store) Stats(ctx context.Context) (*database.Stats, error) {
	stats := new(database.Stats)
	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{(*models.Account)(nil), &stats.Accounts},
		{(*models.TransactionRecord)(nil), &stats.Records},
		{(*models.RainEvent)(nil), &stats.RainEvents},
		{(*models.LootEvent)(nil), &stats.LootEvents},
	}
	for _, c := range counts {
		n, err := s.db.NewSelect().Model(c.model).Count(ctx)
		if err != nil {
			return nil, err
		}
		*c.dest = int64(n)
	}
	return stats, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func creditTx(ctx context.Context, tx bun.Tx, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	exists, err := tx.NewSelect().
		Model((*models.Account)(nil)).
		Where("discord_id = ?", discordID).
		Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, database.ErrAccountNotFound
	}

	now := time.Now()
	balance := &models.Balance{
		DiscordID: discordID,
		Asset:     asset,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var after int64
	err = tx.NewInsert().
		Model(balance).
		On("CONFLICT (discord_id, asset) DO UPDATE").
		Set("amount = b.amount + EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("amount").
		Scan(ctx, &after)
	if err != nil {
		return nil, err
	}

	return insertRecord(ctx, tx, discordID, asset, amount, after, reason, meta)
}

func debitTx(ctx context.Context, tx bun.Tx, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	var after int64
	err := tx.NewUpdate().
		Model((*models.Balance)(nil)).
		Set("amount = amount - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("discord_id = ? AND asset = ? AND amount >= ?", discordID, asset, amount).
		Returning("amount").
		Scan(ctx, &after)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}

	return insertRecord(ctx, tx, discordID, asset, -amount, after, reason, meta)
}

func insertRecord(ctx context.Context, tx bun.Tx, discordID, asset string, amount, after int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	record := &models.TransactionRecord{
		ID:           uuid.New().String(),
		DiscordID:    discordID,
		Asset:        asset,
		Amount:       amount,
		BalanceAfter: after,
		Reason:       reason,
		Metadata:     meta,
		Timestamp:    time.Now(),
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

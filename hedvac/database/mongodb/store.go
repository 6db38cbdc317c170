package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// Store is the document backend. Balances live on the account document and
// are adjusted with $inc under filters that carry the funds guard, so the
// check and the mutation are one server-side operation. Deposit idempotency
// rides on the unique _id of the processed_transfers collection: the marker
// insert happens before the credit, and a duplicate insert stops the credit.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewStore(ctx context.Context, cfg MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb unreachable: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection("transaction_records").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "discord_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction index: %w", err)
	}

	unique := options.Index().SetUnique(true)
	_, err = s.db.Collection("loot_claims").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "loot_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("failed to create loot claim index: %w", err)
	}
	return nil
}

// assetField maps an asset symbol to its balance field on the account
// document. Token ids contain dots, which bson update paths treat as
// nesting, so dots are stored as underscores. Assets are either "HBAR" or a
// "shard.realm.num" id, so the mapping reverses cleanly.
func assetField(asset string) string {
	return "balances." + strings.ReplaceAll(asset, ".", "_")
}

func fieldAsset(field string) string {
	if field == models.AssetHbar {
		return field
	}
	return strings.ReplaceAll(field, "_", ".")
}

func (s *Store) accounts() *mongo.Collection {
	return s.db.Collection("accounts")
}

func (s *Store) RegisterAccount(ctx context.Context, discordID string) (*models.Account, error) {
	now := time.Now()
	account := &models.Account{
		DiscordID: discordID,
		CreatedAt: now,
		UpdatedAt: now,
		Balances:  map[string]int64{},
	}

	_, err := s.accounts().InsertOne(ctx, bson.M{
		"_id":        discordID,
		"discord_id": discordID,
		"balances":   bson.M{},
		"created_at": now,
		"updated_at": now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, database.ErrAccountExists
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) LinkHederaAccount(ctx context.Context, discordID, hederaAccountID string) error {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": discordID},
		bson.M{"$set": bson.M{
			"hedera_account_id": hederaAccountID,
			"updated_at":        time.Now(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return database.ErrAccountNotFound
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, discordID string) (*models.Account, error) {
	var doc accountDoc
	err := s.accounts().FindOne(ctx, bson.M{"_id": discordID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

type accountDoc struct {
	DiscordID       string           `bson:"discord_id"`
	HederaAccountID string           `bson:"hedera_account_id"`
	Balances        map[string]int64 `bson:"balances"`
	CreatedAt       time.Time        `bson:"created_at"`
	UpdatedAt       time.Time        `bson:"updated_at"`
}

func (d *accountDoc) toModel() *models.Account {
	balances := make(map[string]int64, len(d.Balances))
	for field, amount := range d.Balances {
		balances[fieldAsset(field)] = amount
	}
	return &models.Account{
		DiscordID:       d.DiscordID,
		HederaAccountID: d.HederaAccountID,
		Balances:        balances,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (s *Store) GetBalance(ctx context.Context, discordID, asset string) (int64, error) {
	account, err := s.GetAccount(ctx, discordID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Balances[asset], nil
}

func (s *Store) AssetBalances(ctx context.Context, discordID string) ([]models.AssetBalance, error) {
	account, err := s.GetAccount(ctx, discordID)
	if err != nil {
		return nil, err
	}

	balances := make([]models.AssetBalance, 0, len(account.Balances))
	for asset, amount := range account.Balances {
		balances = append(balances, models.AssetBalance{Asset: asset, Amount: amount})
	}
	return balances, nil
}

func (s *Store) Credit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	field := assetField(asset)
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDoc
	err := s.accounts().FindOneAndUpdate(ctx,
		bson.M{"_id": discordID},
		bson.M{
			"$inc": bson.M{field: amount},
			"$set": bson.M{"updated_at": time.Now()},
		},
		after,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, database.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	return s.insertRecord(ctx, discordID, asset, amount, doc.toModel().Balances[asset], reason, meta)
}

func (s *Store) Debit(ctx context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	field := assetField(asset)
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDoc
	err := s.accounts().FindOneAndUpdate(ctx,
		bson.M{"_id": discordID, field: bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{field: -amount},
			"$set": bson.M{"updated_at": time.Now()},
		},
		after,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the account is missing or the guard failed.
		if _, aerr := s.GetAccount(ctx, discordID); aerr != nil {
			return nil, aerr
		}
		return nil, database.ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}

	return s.insertRecord(ctx, discordID, asset, -amount, doc.toModel().Balances[asset], reason, meta)
}

func (s *Store) insertRecord(ctx context.Context, discordID, asset string, amount, after int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
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
	if _, err := s.db.Collection("transaction_records").InsertOne(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) History(ctx context.Context, discordID string, limit int) ([]*models.TransactionRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection("transaction_records").Find(ctx, bson.M{"discord_id": discordID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*models.TransactionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreditDeposit(ctx context.Context, transferID, discordID, asset string, amount int64) (*models.TransactionRecord, error) {
	_, err := s.db.Collection("processed_transfers").InsertOne(ctx, bson.M{
		"_id":          transferID,
		"processed_at": time.Now(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, database.ErrDuplicateTransfer
	}
	if err != nil {
		return nil, err
	}

	record, err := s.Credit(ctx, discordID, asset, amount, models.ReasonDeposit, models.TxMeta{TransferID: transferID})
	if err != nil {
		// Undo the marker on transient failures so a retry can credit.
		// An unregistered depositor keeps the marker: the transfer was
		// seen and will never credit.
		if !errors.Is(err, database.ErrAccountNotFound) {
			_, _ = s.db.Collection("processed_transfers").DeleteOne(ctx, bson.M{"_id": transferID})
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) ResumeCursor(ctx context.Context) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.db.Collection("bot_settings").FindOne(ctx, bson.M{"_id": models.SettingResumeCursor}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return doc.Value, nil
}

func (s *Store) SetResumeCursor(ctx context.Context, cursor string) error {
	_, err := s.db.Collection("bot_settings").UpdateOne(ctx,
		bson.M{"_id": models.SettingResumeCursor},
		bson.M{"$set": bson.M{"value": cursor}},
		options.Update().SetUpsert(true),
	)
	return err
}

// nextID allocates a monotonically increasing id for an event collection.
func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	after := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(true)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection("counters").FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		after,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (s *Store) CreateRainEvent(ctx context.Context, event *models.RainEvent) error {
	id, err := s.nextID(ctx, "rain_events")
	if err != nil {
		return err
	}
	event.ID = id
	_, err = s.db.Collection("rain_events").InsertOne(ctx, event)
	return err
}

func (s *Store) DeleteRainEvent(ctx context.Context, id int64) error {
	_, err := s.db.Collection("rain_events").DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (s *Store) DistributeRain(ctx context.Context, creatorID, asset string, total int64, entries []database.CreditEntry, creatorMeta models.TxMeta) error {
	if _, err := s.Debit(ctx, creatorID, asset, total, models.ReasonRain, creatorMeta); err != nil {
		return err
	}
	var credited int64
	for _, entry := range entries {
		if _, err := s.Credit(ctx, entry.DiscordID, asset, entry.Amount, entry.Reason, entry.Meta); err != nil {
			slog.Error("Rain credit failed after debit, reconciliation needed",
				slog.String("type", "db"),
				slog.String("creator", creatorID),
				slog.String("asset", asset),
				slog.Int64("total", total),
				slog.Int64("credited", credited),
				slog.String("failed_recipient", entry.DiscordID),
				slog.Any("error", err),
			)
			return fmt.Errorf("rain credit leg failed: %w", err)
		}
		credited += entry.Amount
	}
	return nil
}

func (s *Store) CreateLootEvent(ctx context.Context, event *models.LootEvent) error {
	id, err := s.nextID(ctx, "loot_events")
	if err != nil {
		return err
	}
	event.ID = id
	_, err = s.db.Collection("loot_events").InsertOne(ctx, lootDocFromModel(event))
	return err
}

type lootDoc struct {
	ID            int64     `bson:"_id"`
	CreatorID     string    `bson:"creator_id"`
	Asset         string    `bson:"asset"`
	TotalAmount   int64     `bson:"total_amount"`
	ClaimedAmount int64     `bson:"claimed_amount"`
	ClaimCount    int       `bson:"claim_count"`
	MaxClaims     int       `bson:"max_claims"`
	Message       string    `bson:"message"`
	MinRole       string    `bson:"min_role"`
	ChannelID     string    `bson:"channel_id"`
	Status        string    `bson:"status"`
	CreatedAt     time.Time `bson:"created_at"`
	ExpiresAt     time.Time `bson:"expires_at"`
}

func lootDocFromModel(e *models.LootEvent) *lootDoc {
	return &lootDoc{
		ID:            e.ID,
		CreatorID:     e.CreatorID,
		Asset:         e.Asset,
		TotalAmount:   e.TotalAmount,
		ClaimedAmount: e.ClaimedAmount,
		ClaimCount:    e.ClaimCount,
		MaxClaims:     e.MaxClaims,
		Message:       e.Message,
		MinRole:       e.MinRole,
		ChannelID:     e.ChannelID,
		Status:        e.Status,
		CreatedAt:     e.CreatedAt,
		ExpiresAt:     e.ExpiresAt,
	}
}

func (d *lootDoc) toModel() *models.LootEvent {
	return &models.LootEvent{
		ID:            d.ID,
		CreatorID:     d.CreatorID,
		Asset:         d.Asset,
		TotalAmount:   d.TotalAmount,
		ClaimedAmount: d.ClaimedAmount,
		ClaimCount:    d.ClaimCount,
		MaxClaims:     d.MaxClaims,
		Message:       d.Message,
		MinRole:       d.MinRole,
		ChannelID:     d.ChannelID,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt,
		ExpiresAt:     d.ExpiresAt,
	}
}

func (s *Store) GetLootEvent(ctx context.Context, id int64) (*models.LootEvent, error) {
	var doc lootDoc
	err := s.db.Collection("loot_events").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, database.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *Store) ClaimLoot(ctx context.Context, lootID int64, userID string, amount int64) (*models.LootClaim, error) {
	claim := &models.LootClaim{
		LootID:    lootID,
		UserID:    userID,
		Amount:    amount,
		ClaimedAt: time.Now(),
	}

	_, err := s.db.Collection("loot_claims").InsertOne(ctx, bson.M{
		"loot_id":    lootID,
		"user_id":    userID,
		"amount":     amount,
		"claimed_at": claim.ClaimedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, database.ErrAlreadyClaimed
	}
	if err != nil {
		return nil, err
	}

	var doc lootDoc
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = s.db.Collection("loot_events").FindOneAndUpdate(ctx,
		bson.M{
			"_id":    lootID,
			"status": models.EventStatusActive,
			"$expr":  bson.M{"$lt": bson.A{"$claim_count", "$max_claims"}},
		},
		bson.M{"$inc": bson.M{"claimed_amount": amount, "claim_count": 1}},
		after,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Undo the claim marker so the user may retry on a different
		// event state.
		_, _ = s.db.Collection("loot_claims").DeleteOne(ctx, bson.M{"loot_id": lootID, "user_id": userID})
		return nil, s.claimRejectReason(ctx, lootID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.Credit(ctx, userID, doc.Asset, amount, models.ReasonLootClaim, models.TxMeta{EventID: lootID}); err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *Store) claimRejectReason(ctx context.Context, lootID int64) error {
	event, err := s.GetLootEvent(ctx, lootID)
	if err != nil {
		return err
	}
	if event.Status != models.EventStatusActive {
		return database.ErrLootClosed
	}
	return database.ErrLootFull
}

func (s *Store) ExpireLootEvents(ctx context.Context, now time.Time) ([]*models.LootEvent, error) {
	filter := bson.M{
		"status":     models.EventStatusActive,
		"expires_at": bson.M{"$lte": now},
	}

	var expired []*models.LootEvent
	for {
		var doc lootDoc
		after := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err := s.db.Collection("loot_events").FindOneAndUpdate(ctx,
			filter,
			bson.M{"$set": bson.M{"status": models.EventStatusExpired}},
			after,
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return expired, nil
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, doc.toModel())
	}
}

func (s *Store) CompleteLootEvent(ctx context.Context, id int64, fromStatus string) (bool, error) {
	res, err := s.db.Collection("loot_events").UpdateOne(ctx,
		bson.M{"_id": id, "status": fromStatus},
		bson.M{"$set": bson.M{"status": models.EventStatusCompleted}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) Stats(ctx context.Context) (*database.Stats, error) {
	stats := new(database.Stats)
	counts := []struct {
		collection string
		dest       *int64
	}{
		{"accounts", &stats.Accounts},
		{"transaction_records", &stats.Records},
		{"rain_events", &stats.RainEvents},
		{"loot_events", &stats.LootEvents},
	}
	for _, c := range counts {
		n, err := s.db.Collection(c.collection).CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, err
		}
		*c.dest = n
	}
	return stats, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

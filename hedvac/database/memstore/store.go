package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

// Store keeps the whole ledger in process memory behind one mutex. It exists
// for tests and local development; it honors the same guard semantics as the
// production backends.
type Store struct {
	mu sync.Mutex

	accounts  map[string]*models.Account
	balances  map[string]map[string]int64
	records   []*models.TransactionRecord
	processed map[string]time.Time
	settings  map[string]string

	rainEvents map[int64]*models.RainEvent
	lootEvents map[int64]*models.LootEvent
	lootClaims map[int64]map[string]*models.LootClaim
	nextEvent  int64
}

func NewStore() *Store {
	return &Store{
		accounts:   make(map[string]*models.Account),
		balances:   make(map[string]map[string]int64),
		processed:  make(map[string]time.Time),
		settings:   make(map[string]string),
		rainEvents: make(map[int64]*models.RainEvent),
		lootEvents: make(map[int64]*models.LootEvent),
		lootClaims: make(map[int64]map[string]*models.LootClaim),
	}
}

func (s *Store) RegisterAccount(_ context.Context, discordID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[discordID]; ok {
		return nil, database.ErrAccountExists
	}
	now := time.Now()
	account := &models.Account{
		DiscordID: discordID,
		CreatedAt: now,
		UpdatedAt: now,
		Balances:  map[string]int64{},
	}
	s.accounts[discordID] = account
	s.balances[discordID] = map[string]int64{}
	return account, nil
}

func (s *Store) GetAccount(_ context.Context, discordID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[discordID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	copied := *account
	copied.Balances = make(map[string]int64, len(s.balances[discordID]))
	for asset, amount := range s.balances[discordID] {
		copied.Balances[asset] = amount
	}
	return &copied, nil
}

func (s *Store) LinkHederaAccount(_ context.Context, discordID, hederaAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[discordID]
	if !ok {
		return database.ErrAccountNotFound
	}
	account.HederaAccountID = hederaAccountID
	account.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetBalance(_ context.Context, discordID, asset string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.balances[discordID][asset], nil
}

func (s *Store) AssetBalances(_ context.Context, discordID string) ([]models.AssetBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[discordID]; !ok {
		return nil, database.ErrAccountNotFound
	}

	balances := make([]models.AssetBalance, 0, len(s.balances[discordID]))
	for asset, amount := range s.balances[discordID] {
		balances = append(balances, models.AssetBalance{Asset: asset, Amount: amount})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })
	return balances, nil
}

func (s *Store) credit(discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	if _, ok := s.accounts[discordID]; !ok {
		return nil, database.ErrAccountNotFound
	}
	s.balances[discordID][asset] += amount
	return s.appendRecord(discordID, asset, amount, s.balances[discordID][asset], reason, meta), nil
}

func (s *Store) debit(discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	if _, ok := s.accounts[discordID]; !ok {
		return nil, database.ErrAccountNotFound
	}
	if s.balances[discordID][asset] < amount {
		return nil, database.ErrInsufficientFunds
	}
	s.balances[discordID][asset] -= amount
	return s.appendRecord(discordID, asset, -amount, s.balances[discordID][asset], reason, meta), nil
}

func (s *Store) appendRecord(discordID, asset string, amount, after int64, reason string, meta models.TxMeta) *models.TransactionRecord {
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
	s.records = append(s.records, record)
	return record
}

func (s *Store) Credit(_ context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credit(discordID, asset, amount, reason, meta)
}

func (s *Store) Debit(_ context.Context, discordID, asset string, amount int64, reason string, meta models.TxMeta) (*models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debit(discordID, asset, amount, reason, meta)
}

func (s *Store) History(_ context.Context, discordID string, limit int) ([]*models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*models.TransactionRecord
	for i := len(s.records) - 1; i >= 0 && len(records) < limit; i-- {
		if s.records[i].DiscordID == discordID {
			records = append(records, s.records[i])
		}
	}
	return records, nil
}

func (s *Store) CreditDeposit(_ context.Context, transferID, discordID, asset string, amount int64) (*models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[transferID]; ok {
		return nil, database.ErrDuplicateTransfer
	}
	if _, ok := s.accounts[discordID]; !ok {
		return nil, database.ErrAccountNotFound
	}
	s.processed[transferID] = time.Now()
	return s.credit(discordID, asset, amount, models.ReasonDeposit, models.TxMeta{TransferID: transferID})
}

func (s *Store) ResumeCursor(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[models.SettingResumeCursor], nil
}

func (s *Store) SetResumeCursor(_ context.Context, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[models.SettingResumeCursor] = cursor
	return nil
}

func (s *Store) CreateRainEvent(_ context.Context, event *models.RainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	event.ID = s.nextEvent
	s.rainEvents[event.ID] = event
	return nil
}

func (s *Store) DeleteRainEvent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rainEvents, id)
	return nil
}

func (s *Store) DistributeRain(_ context.Context, creatorID, asset string, total int64, entries []database.CreditEntry, creatorMeta models.TxMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.debit(creatorID, asset, total, models.ReasonRain, creatorMeta); err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := s.credit(entry.DiscordID, asset, entry.Amount, entry.Reason, entry.Meta); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateLootEvent(_ context.Context, event *models.LootEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	event.ID = s.nextEvent
	s.lootEvents[event.ID] = event
	s.lootClaims[event.ID] = make(map[string]*models.LootClaim)
	return nil
}

func (s *Store) GetLootEvent(_ context.Context, id int64) (*models.LootEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.lootEvents[id]
	if !ok {
		return nil, database.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (s *Store) ClaimLoot(_ context.Context, lootID int64, userID string, amount int64) (*models.LootClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.lootEvents[lootID]
	if !ok {
		return nil, database.ErrEventNotFound
	}
	if _, ok := s.lootClaims[lootID][userID]; ok {
		return nil, database.ErrAlreadyClaimed
	}
	if event.Status != models.EventStatusActive {
		return nil, database.ErrLootClosed
	}
	if event.ClaimCount >= event.MaxClaims {
		return nil, database.ErrLootFull
	}

	claim := &models.LootClaim{
		LootID:    lootID,
		UserID:    userID,
		Amount:    amount,
		ClaimedAt: time.Now(),
	}
	if _, err := s.credit(userID, event.Asset, amount, models.ReasonLootClaim, models.TxMeta{EventID: lootID}); err != nil {
		return nil, err
	}
	event.ClaimedAmount += amount
	event.ClaimCount++
	s.lootClaims[lootID][userID] = claim
	return claim, nil
}

func (s *Store) ExpireLootEvents(_ context.Context, now time.Time) ([]*models.LootEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.LootEvent
	for _, event := range s.lootEvents {
		if event.Status == models.EventStatusActive && !event.ExpiresAt.After(now) {
			event.Status = models.EventStatusExpired
			copied := *event
			expired = append(expired, &copied)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (s *Store) CompleteLootEvent(_ context.Context, id int64, fromStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.lootEvents[id]
	if !ok {
		return false, database.ErrEventNotFound
	}
	if event.Status != fromStatus {
		return false, nil
	}
	event.Status = models.EventStatusCompleted
	return true, nil
}

func (s *Store) Stats(_ context.Context) (*database.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &database.Stats{
		Accounts:   int64(len(s.accounts)),
		Records:    int64(len(s.records)),
		RainEvents: int64(len(s.rainEvents)),
		LootEvents: int64(len(s.lootEvents)),
	}, nil
}

func (s *Store) Close(context.Context) error {
	return nil
}

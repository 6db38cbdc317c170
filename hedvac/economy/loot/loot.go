package loot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

const (
	defaultSweepInterval = time.Minute
	sweepTimeout         = 30 * time.Second
)

var (
	ErrInvalidAmount  = errors.New("loot amount must be positive")
	ErrInvalidClaims  = errors.New("loot needs at least one claim slot")
	ErrAmountTooSmall = errors.New("loot amount smaller than claim count")
)

// Manager runs claim-based distributions. The full amount is debited from
// the creator at creation; each claim pays floor(total/max_claims). Claims
// for the same (event, user) pair are serialized through a lock so repeat
// clicks resolve deterministically, with store-level uniqueness as the
// backstop.
type Manager struct {
	store database.Store

	claimLocks sync.Map

	sweepTicker *time.Ticker
	shutdown    chan struct{}
	done        sync.WaitGroup
}

func NewManager(store database.Store, sweepInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Manager{
		store:       store,
		sweepTicker: time.NewTicker(sweepInterval),
		shutdown:    make(chan struct{}),
	}
}

// Create debits the creator for the full amount and opens the event.
func (m *Manager) Create(ctx context.Context, creatorID, asset string, total int64, maxClaims int, expiresIn time.Duration, channelID, message string) (*models.LootEvent, error) {
	if total <= 0 {
		return nil, ErrInvalidAmount
	}
	if maxClaims <= 0 {
		return nil, ErrInvalidClaims
	}
	if total/int64(maxClaims) == 0 {
		return nil, ErrAmountTooSmall
	}

	event := &models.LootEvent{
		CreatorID:   creatorID,
		Asset:       asset,
		TotalAmount: total,
		MaxClaims:   maxClaims,
		Message:     message,
		ChannelID:   channelID,
		Status:      models.EventStatusActive,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(expiresIn),
	}
	if err := m.store.CreateLootEvent(ctx, event); err != nil {
		return nil, err
	}

	meta := models.TxMeta{EventID: event.ID}
	if _, err := m.store.Debit(ctx, creatorID, asset, total, models.ReasonLoot, meta); err != nil {
		// The event was never funded; close it so it cannot be claimed.
		if _, cerr := m.store.CompleteLootEvent(ctx, event.ID, models.EventStatusActive); cerr != nil {
			slog.Error("Failed to close unfunded loot event",
				slog.String("type", "db"),
				slog.Int64("event_id", event.ID),
				slog.Any("error", cerr),
			)
		}
		return nil, err
	}

	slog.Info("Loot event created",
		slog.String("type", "cmd"),
		slog.Int64("event_id", event.ID),
		slog.String("creator", creatorID),
		slog.String("asset", asset),
		slog.Int64("total", total),
		slog.Int("max_claims", maxClaims),
	)
	return event, nil
}

func (m *Manager) Event(ctx context.Context, id int64) (*models.LootEvent, error) {
	return m.store.GetLootEvent(ctx, id)
}

// Claim credits one claim to the user. Errors distinguish a repeat claim, a
// closed event and a full event.
func (m *Manager) Claim(ctx context.Context, lootID int64, userID string) (*models.LootClaim, error) {
	lockKey := fmt.Sprintf("%d:%s", lootID, userID)
	lock, _ := m.claimLocks.LoadOrStore(lockKey, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer func() {
		mu.Unlock()
		m.claimLocks.Delete(lockKey)
	}()

	event, err := m.store.GetLootEvent(ctx, lootID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusActive {
		return nil, database.ErrLootClosed
	}

	claim, err := m.store.ClaimLoot(ctx, lootID, userID, event.AmountPerClaim())
	if err != nil {
		return nil, err
	}

	// Close capacity-exhausted events and return any undistributed
	// remainder. Only the flipper refunds, so the refund happens once.
	updated, err := m.store.GetLootEvent(ctx, lootID)
	if err == nil && updated.ClaimCount >= updated.MaxClaims {
		flipped, cerr := m.store.CompleteLootEvent(ctx, lootID, models.EventStatusActive)
		if cerr != nil {
			slog.Error("Failed to complete full loot event",
				slog.String("type", "db"),
				slog.Int64("event_id", lootID),
				slog.Any("error", cerr),
			)
		} else if flipped {
			m.refundRemainder(ctx, updated)
		}
	}

	return claim, nil
}

func (m *Manager) refundRemainder(ctx context.Context, event *models.LootEvent) {
	remainder := event.Remainder()
	if remainder <= 0 {
		return
	}

	meta := models.TxMeta{EventID: event.ID}
	if _, err := m.store.Credit(ctx, event.CreatorID, event.Asset, remainder, models.ReasonLootRefund, meta); err != nil {
		slog.Error("Failed to refund loot remainder",
			slog.String("type", "db"),
			slog.Int64("event_id", event.ID),
			slog.String("creator", event.CreatorID),
			slog.Int64("remainder", remainder),
			slog.Any("error", err),
		)
		return
	}

	slog.Info("Loot remainder refunded",
		slog.String("type", "sys"),
		slog.Int64("event_id", event.ID),
		slog.Int64("remainder", remainder),
	)
}

// Start begins the expiry sweep.
func (m *Manager) Start() {
	m.done.Add(1)
	go func() {
		defer m.done.Done()
		defer m.sweepTicker.Stop()

		for {
			select {
			case <-m.sweepTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				if err := m.Sweep(ctx); err != nil {
					slog.Error("Loot expiry sweep failed",
						slog.String("type", "sys"),
						slog.Any("error", err),
					)
				}
				cancel()
			case <-m.shutdown:
				return
			}
		}
	}()
}

// Sweep expires overdue events and refunds their remainders. The
// expired->completed transition is a guarded update, so running the sweep
// twice over the same event refunds once.
func (m *Manager) Sweep(ctx context.Context) error {
	expired, err := m.store.ExpireLootEvents(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, event := range expired {
		flipped, err := m.store.CompleteLootEvent(ctx, event.ID, models.EventStatusExpired)
		if err != nil {
			slog.Error("Failed to complete expired loot event",
				slog.String("type", "db"),
				slog.Int64("event_id", event.ID),
				slog.Any("error", err),
			)
			continue
		}
		if flipped {
			m.refundRemainder(ctx, event)
		}
	}
	return nil
}

func (m *Manager) Shutdown() {
	close(m.shutdown)
	m.done.Wait()
	slog.Info("Loot manager shutdown completed", slog.String("type", "sys"))
}

package rain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/models"
)

var (
	ErrInvalidAmount  = errors.New("rain amount must be positive")
	ErrNoRecipients   = errors.New("no eligible recipients")
	ErrAmountTooSmall = errors.New("rain amount smaller than recipient count")
)

// Result reports one completed rain.
type Result struct {
	EventID    int64
	PerUser    int64
	Remainder  int64
	Recipients []string
}

// Service splits an amount evenly across recipients. The whole distribution
// is a single atomic store operation: the creator's debit, every recipient
// credit and the remainder credit land together. The integer remainder goes
// back to the creator, so rain conserves the total.
type Service struct {
	store database.Store
}

func NewService(store database.Store) *Service {
	return &Service{store: store}
}

func (s *Service) Rain(ctx context.Context, creatorID, asset string, total int64, recipients []string, message string) (*Result, error) {
	if total <= 0 {
		return nil, ErrInvalidAmount
	}

	// The creator never rains on themselves, and only registered accounts
	// can be credited.
	eligible := make([]string, 0, len(recipients))
	for _, id := range recipients {
		if id == creatorID {
			continue
		}
		if _, err := s.store.GetAccount(ctx, id); err != nil {
			if errors.Is(err, database.ErrAccountNotFound) {
				continue
			}
			return nil, err
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return nil, ErrNoRecipients
	}

	perUser := total / int64(len(eligible))
	if perUser == 0 {
		return nil, ErrAmountTooSmall
	}
	remainder := total - perUser*int64(len(eligible))

	event := &models.RainEvent{
		CreatorID:         creatorID,
		Asset:             asset,
		Amount:            total,
		DistributedAmount: total - remainder,
		RecipientCount:    len(eligible),
		Message:           message,
		Status:            models.EventStatusCompleted,
		CreatedAt:         time.Now(),
	}
	if err := s.store.CreateRainEvent(ctx, event); err != nil {
		return nil, err
	}

	entries := make([]database.CreditEntry, 0, len(eligible)+1)
	for _, id := range eligible {
		entries = append(entries, database.CreditEntry{
			DiscordID: id,
			Amount:    perUser,
			Reason:    models.ReasonRain,
			Meta:      models.TxMeta{EventID: event.ID, Counterparty: creatorID},
		})
	}
	if remainder > 0 {
		entries = append(entries, database.CreditEntry{
			DiscordID: creatorID,
			Amount:    remainder,
			Reason:    models.ReasonRainRefund,
			Meta:      models.TxMeta{EventID: event.ID},
		})
	}

	creatorMeta := models.TxMeta{EventID: event.ID}
	if err := s.store.DistributeRain(ctx, creatorID, asset, total, entries, creatorMeta); err != nil {
		// The event row exists only so the credits can carry its id.
		// Take it back out rather than leave a completed event with no
		// distribution behind it.
		if delErr := s.store.DeleteRainEvent(ctx, event.ID); delErr != nil {
			slog.Error("Failed to remove undistributed rain event",
				slog.String("type", "db"),
				slog.Int64("event_id", event.ID),
				slog.Any("error", delErr),
			)
		}
		return nil, err
	}

	slog.Info("Rain distributed",
		slog.String("type", "cmd"),
		slog.String("creator", creatorID),
		slog.String("asset", asset),
		slog.Int64("total", total),
		slog.Int64("per_user", perUser),
		slog.Int("recipients", len(eligible)),
	)

	return &Result{
		EventID:    event.ID,
		PerUser:    perUser,
		Remainder:  remainder,
		Recipients: eligible,
	}, nil
}

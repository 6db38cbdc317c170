package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Promotional event statuses. Transitions are sweep- or capacity-driven:
// active -> completed (capacity reached), active -> expired -> completed
// (expiry sweep, remainder refunded). A status never moves backward.
const (
	EventStatusActive    = "active"
	EventStatusExpired   = "expired"
	EventStatusCompleted = "completed"
)

// RainEvent records an immediate pool distribution. Rain is applied in full
// when created, so rows are written already completed.
type RainEvent struct {
	bun.BaseModel `bun:"table:rain_events,alias:re"`

	ID                int64     `bun:"id,pk,autoincrement" bson:"id"`
	CreatorID         string    `bun:"creator_id,notnull" bson:"creator_id"`
	Asset             string    `bun:"asset,notnull" bson:"asset"`
	Amount            int64     `bun:"amount,notnull" bson:"amount"`
	DistributedAmount int64     `bun:"distributed_amount,notnull,default:0" bson:"distributed_amount"`
	RecipientCount    int       `bun:"recipient_count,notnull,default:0" bson:"recipient_count"`
	WindowMinutes     int       `bun:"window_minutes,notnull,default:60" bson:"window_minutes"`
	MinRole           string    `bun:"min_role" bson:"min_role"`
	Message           string    `bun:"message" bson:"message"`
	Status            string    `bun:"status,notnull,default:'completed'" bson:"status"`
	CreatedAt         time.Time `bun:"created_at,notnull" bson:"created_at"`
}

// LootEvent is a claim-based distribution with a claim cap and an optional
// expiry. ClaimedAmount/ClaimCount are only ever advanced through the store's
// capacity-guarded update.
type LootEvent struct {
	bun.BaseModel `bun:"table:loot_events,alias:le"`

	ID            int64     `bun:"id,pk,autoincrement" bson:"id"`
	CreatorID     string    `bun:"creator_id,notnull" bson:"creator_id"`
	Asset         string    `bun:"asset,notnull" bson:"asset"`
	TotalAmount   int64     `bun:"total_amount,notnull" bson:"total_amount"`
	ClaimedAmount int64     `bun:"claimed_amount,notnull,default:0" bson:"claimed_amount"`
	ClaimCount    int       `bun:"claim_count,notnull,default:0" bson:"claim_count"`
	MaxClaims     int       `bun:"max_claims,notnull" bson:"max_claims"`
	Message       string    `bun:"message" bson:"message"`
	MinRole       string    `bun:"min_role" bson:"min_role"`
	ChannelID     string    `bun:"channel_id" bson:"channel_id"`
	Status        string    `bun:"status,notnull,default:'active'" bson:"status"`
	CreatedAt     time.Time `bun:"created_at,notnull" bson:"created_at"`
	ExpiresAt     time.Time `bun:"expires_at" bson:"expires_at"`
}

// AmountPerClaim is the fixed payout of one claim.
func (e *LootEvent) AmountPerClaim() int64 {
	if e.MaxClaims <= 0 {
		return 0
	}
	return e.TotalAmount / int64(e.MaxClaims)
}

// Remainder is the undistributed part refunded to the creator when the event
// closes.
func (e *LootEvent) Remainder() int64 {
	return e.TotalAmount - e.ClaimedAmount
}

// LootClaim is one user's claim against a loot event. Uniqueness of
// (loot_id, user_id) is enforced by the store.
type LootClaim struct {
	bun.BaseModel `bun:"table:loot_claims,alias:lc"`

	ID        int64     `bun:"id,pk,autoincrement" bson:"id"`
	LootID    int64     `bun:"loot_id,notnull,unique:loot_claims_event_user" bson:"loot_id"`
	UserID    string    `bun:"user_id,notnull,unique:loot_claims_event_user" bson:"user_id"`
	Amount    int64     `bun:"amount,notnull" bson:"amount"`
	ClaimedAt time.Time `bun:"claimed_at,notnull" bson:"claimed_at"`
}

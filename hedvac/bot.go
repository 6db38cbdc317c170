package hedvac

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
	"github.com/disgoorg/snowflake/v2"

	"github.com/hedvacbot/hedvac/hedvac/activity"
	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/economy/loot"
	"github.com/hedvacbot/hedvac/hedvac/economy/rain"
	"github.com/hedvacbot/hedvac/hedvac/economy/withdraw"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
	"github.com/hedvacbot/hedvac/hedvac/listener"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string

	Store           database.Store
	Ledger          *ledger.Ledger
	Mirror          *hedera.MirrorClient
	Listener        *listener.Listener
	Activity        *activity.Tracker
	RainService     *rain.Service
	LootManager     *loot.Manager
	WithdrawService *withdraw.Service
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentGuildMessages,
			gateway.IntentGuildPresences,
		)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("Hedvac is now ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the vault"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}

// DM sends a direct message, best effort.
func (b *Bot) DM(discordID string, embed discord.Embed) {
	userID, err := snowflake.Parse(discordID)
	if err != nil {
		return
	}

	dmChannel, err := b.Client.Rest().CreateDMChannel(userID)
	if err != nil {
		slog.Debug("Could not open DM channel",
			slog.String("type", "sys"),
			slog.String("user_id", discordID),
			slog.Any("error", err),
		)
		return
	}
	if _, err := b.Client.Rest().CreateMessage(dmChannel.ID(), discord.MessageCreate{Embeds: []discord.Embed{embed}}); err != nil {
		slog.Debug("Could not deliver DM",
			slog.String("type", "sys"),
			slog.String("user_id", discordID),
			slog.Any("error", err),
		)
	}
}

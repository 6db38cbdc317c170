package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"github.com/joho/godotenv"

	"github.com/hedvacbot/hedvac/hedvac"
	"github.com/hedvacbot/hedvac/hedvac/activity"
	"github.com/hedvacbot/hedvac/hedvac/commands"
	"github.com/hedvacbot/hedvac/hedvac/database"
	"github.com/hedvacbot/hedvac/hedvac/database/mongodb"
	"github.com/hedvacbot/hedvac/hedvac/database/postgres"
	"github.com/hedvacbot/hedvac/hedvac/economy/loot"
	"github.com/hedvacbot/hedvac/hedvac/economy/rain"
	"github.com/hedvacbot/hedvac/hedvac/economy/withdraw"
	"github.com/hedvacbot/hedvac/hedvac/handlers"
	"github.com/hedvacbot/hedvac/hedvac/hedera"
	"github.com/hedvacbot/hedvac/hedvac/ledger"
	"github.com/hedvacbot/hedvac/hedvac/listener"
	"github.com/hedvacbot/hedvac/hedvac/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_ = godotenv.Load()

	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Hedvac Discord Bot",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := hedvac.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Store initialization failed",
			slog.String("type", "db"),
			slog.String("backend", cfg.Backend),
			slog.Any("error", err))
		os.Exit(-1)
	}
	defer closeStore()
	slog.Info("Store initialized",
		slog.String("type", "db"),
		slog.String("backend", cfg.Backend))

	b := hedvac.New(*cfg, version, commit)
	b.Store = store
	b.Ledger = ledger.New(store)

	b.Mirror, err = hedera.NewMirrorClient(cfg.Mirror)
	if err != nil {
		slog.Error("Mirror client initialization failed", slog.Any("error", err))
		os.Exit(-1)
	}

	operatorKey := os.Getenv("HEDERA_OPERATOR_KEY")
	if operatorKey == "" {
		slog.Error("HEDERA_OPERATOR_KEY is not set")
		os.Exit(-1)
	}
	hederaClient, err := hedera.NewClient(cfg.Hedera, operatorKey)
	if err != nil {
		slog.Error("Hedera client initialization failed", slog.Any("error", err))
		os.Exit(-1)
	}
	defer hederaClient.Close()

	b.Activity = activity.NewTracker()
	b.RainService = rain.NewService(store)
	b.LootManager = loot.NewManager(store, time.Minute)
	b.WithdrawService = withdraw.NewService(b.Ledger, hederaClient)
	b.Listener = listener.New(store, b.Mirror, cfg.Hedera.VaultAccount, cfg.PollInterval())
	b.Listener.SetNotifier(handlers.NewDepositNotifier(b))

	h := handler.New()

	h.Command("/register", handlers.WrapWithLogging("register", commands.RegisterHandler(b)))
	h.Command("/balance", handlers.WrapWithLogging("balance", commands.BalanceHandler(b)))
	h.Command("/deposit", handlers.WrapWithLogging("deposit", commands.DepositHandler(b)))
	h.Command("/send", handlers.WrapWithLogging("send", commands.SendHandler(b)))
	h.Command("/history", handlers.WrapWithLogging("history", commands.HistoryHandler(b)))
	h.Command("/rain", handlers.WrapWithLogging("rain", commands.RainHandler(b)))
	h.Command("/loot", handlers.WrapWithLogging("loot", commands.LootHandler(b)))
	h.Component("/loot/", handlers.WrapComponentWithLogging("loot-claim", commands.LootButtonHandler(b)))
	h.Command("/withdraw", handlers.WrapWithLogging("withdraw", commands.WithdrawHandler(b)))
	h.Component("/withdraw/", handlers.WrapComponentWithLogging("withdraw-confirm", commands.WithdrawButtonHandler(b)))
	h.Command("/stats", handlers.WrapWithLogging("stats", commands.StatsHandler(b)))

	if err = b.SetupBot(h,
		bot.NewListenerFunc(b.OnReady),
		handlers.MessageActivityListener(b.Activity),
		handlers.PresenceActivityListener(b.Activity),
	); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}

	gwCtx, gwCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gwCancel()
	if err = b.Client.OpenGateway(gwCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	b.Listener.Start()
	b.LootManager.Start()
	b.Activity.Start()
	defer func() {
		b.Listener.Shutdown()
		b.LootManager.Shutdown()
		b.Activity.Shutdown()
	}()

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
}

// openStore builds the configured persistence backend and returns it with a
// cleanup function.
func openStore(ctx context.Context, cfg *hedvac.Config) (database.Store, func(), error) {
	closeTimeout := func(close func(context.Context) error) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := close(ctx); err != nil {
				slog.Error("Store close failed",
					slog.String("type", "db"),
					slog.Any("error", err))
			}
		}
	}

	switch cfg.Backend {
	case "mongodb":
		store, err := mongodb.NewStore(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return store, closeTimeout(store.Close), nil
	default:
		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitializeSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store := postgres.NewStore(db.BunDB())
		return store, db.Close, nil
	}
}

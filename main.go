package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broadcastbot/config"
	"broadcastbot/internal/auth"
	"broadcastbot/internal/channel"
	"broadcastbot/internal/compose"
	"broadcastbot/internal/dispatch"
	"broadcastbot/internal/lifecycle"
	"broadcastbot/internal/locales"
	"broadcastbot/internal/media"
	"broadcastbot/internal/messenger"
	"broadcastbot/internal/storage"

	appBot "broadcastbot/bot"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
	"github.com/redis/go-redis/v9"
	"go.uber.org/ratelimit"
)

// channelSendRate caps outgoing messages per channel bot, per second.
const channelSendRate = 20

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize localization bundle
	locales.Init(cfg.DefaultLanguage)

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	client, err := storage.ConnectMongo(ctx, cfg.MongoDBURI)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err = client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()

	// Build one channel per configuration entry: its own bot, recipient
	// set, post store and send rate limiter.
	channels := make([]*channel.Channel, 0, len(cfg.Channels))
	for _, chCfg := range cfg.Channels {
		chBot, err := newTelegoBot(chCfg.BotToken, cfg.Debug)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatalf("Failed to create bot for channel %s: %v", chCfg.Name, err)
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     chCfg.RedisAddr,
			Username: chCfg.RedisUsername,
			Password: chCfg.RedisPassword,
			DB:       chCfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			sentry.CaptureException(err)
			log.Fatalf("Failed to connect to Redis for channel %s: %v", chCfg.Name, err)
		}
		defer redisClient.Close()

		channels = append(channels, &channel.Channel{
			Name:       chCfg.Name,
			Messenger:  messenger.NewTelego(chBot),
			Recipients: channel.NewRedisRecipients(redisClient, chCfg.RecipientSet),
			Store:      storage.NewMongoPostStore(client.Database(chCfg.MongoDatabase), chCfg.Name),
			Limiter:    ratelimit.New(channelSendRate),
		})
		log.Printf("Configured channel %s (recipient set %s)", chCfg.Name, chCfg.RecipientSet)
	}
	registry := channel.NewRegistry(channels)

	// Admin bot and its update feed.
	adminBot, err := newTelegoBot(cfg.AdminBotToken, cfg.Debug)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create admin bot: %v", err)
	}
	updates, err := adminBot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	checker, err := auth.NewOperatorChecker(cfg.OperatorIDs)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create operator checker: %v", err)
	}

	composer, err := compose.NewManager(compose.Deps{
		Bot:        adminBot,
		Registry:   registry,
		Dispatcher: dispatch.NewEngine(cfg.DispatchWorkers),
		Lifecycle:  lifecycle.NewManager(registry),
		Transcoder: media.NewFFmpeg(),
		Downloader: appBot.NewDownloader(adminBot),
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	bot, err := appBot.New(appBot.BotDeps{
		Bot:         adminBot,
		UpdatesChan: updates,
		Debug:       cfg.Debug,
		Checker:     checker,
		Composer:    composer,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	// Start the bot wrapper's processing loop in a separate goroutine
	go bot.Start(ctx)

	// Wait for context cancellation (e.g., SIGINT, SIGTERM)
	<-ctx.Done()

	log.Println("Shutting down bot...")
	bot.Stop()

	log.Println("Bot shutdown complete.")
}

func newTelegoBot(token string, debug bool) (*telego.Bot, error) {
	if debug {
		return telego.NewBot(token, telego.WithDefaultDebugLogger())
	}
	return telego.NewBot(token, telego.WithDefaultLogger(false, false))
}

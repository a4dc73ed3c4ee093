package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ChannelConfig holds the per-channel settings: the channel's own bot
// token, its Redis recipient set and its Mongo database.
type ChannelConfig struct {
	Name          string
	BotToken      string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RecipientSet  string
	MongoDatabase string
}

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	AdminBotToken   string
	OperatorIDs     []int64
	SentryDSN       string
	MongoDBURI      string
	DefaultLanguage string
	DispatchWorkers int
	Channels        []ChannelConfig
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
//
// Channels are driven by CHANNEL_NAMES, a comma-separated list of names.
// Each name N gets its own <N>_BOT_TOKEN, <N>_REDIS_ADDR,
// <N>_REDIS_USERNAME, <N>_REDIS_PASSWORD, <N>_REDIS_DB,
// <N>_RECIPIENT_SET and <N>_MONGODB_DATABASE group, with the name
// uppercased as the prefix.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	operatorIDs, err := parseOperatorIDs(getEnv("OPERATOR_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATOR_IDS: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("DISPATCH_WORKERS", "4"))
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("invalid DISPATCH_WORKERS: %q", getEnv("DISPATCH_WORKERS", "4"))
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Debug:           debug,
		Version:         getEnv("VERSION", "dev"),
		AdminBotToken:   getEnv("ADMIN_BOT_TOKEN", ""),
		OperatorIDs:     operatorIDs,
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
		DispatchWorkers: workers,
	}

	channelNames := getEnv("CHANNEL_NAMES", "")
	if channelNames == "" {
		return nil, fmt.Errorf("CHANNEL_NAMES is required")
	}
	for _, name := range strings.Split(channelNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		chCfg, err := loadChannelConfig(name)
		if err != nil {
			return nil, err
		}
		cfg.Channels = append(cfg.Channels, chCfg)
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("CHANNEL_NAMES contains no channel names")
	}

	// Basic validation for essential variables
	if cfg.AdminBotToken == "" {
		return nil, fmt.Errorf("ADMIN_BOT_TOKEN is required")
	}
	if len(cfg.OperatorIDs) == 0 {
		return nil, fmt.Errorf("OPERATOR_IDS is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}

	return cfg, nil
}

// loadChannelConfig reads one channel's env group.
func loadChannelConfig(name string) (ChannelConfig, error) {
	prefix := strings.ToUpper(name)

	redisDBStr := getEnv(prefix+"_REDIS_DB", "0")
	redisDB, err := strconv.Atoi(redisDBStr)
	if err != nil {
		return ChannelConfig{}, fmt.Errorf("invalid %s_REDIS_DB: %w", prefix, err)
	}

	chCfg := ChannelConfig{
		Name:          name,
		BotToken:      getEnv(prefix+"_BOT_TOKEN", ""),
		RedisAddr:     getEnv(prefix+"_REDIS_ADDR", "localhost:6379"),
		RedisUsername: getEnv(prefix+"_REDIS_USERNAME", ""),
		RedisPassword: getEnv(prefix+"_REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		RecipientSet:  getEnv(prefix+"_RECIPIENT_SET", "users"),
		MongoDatabase: getEnv(prefix+"_MONGODB_DATABASE", ""),
	}

	if chCfg.BotToken == "" {
		return ChannelConfig{}, fmt.Errorf("%s_BOT_TOKEN is required", prefix)
	}
	if chCfg.MongoDatabase == "" {
		return ChannelConfig{}, fmt.Errorf("%s_MONGODB_DATABASE is required", prefix)
	}

	return chCfg, nil
}

// parseOperatorIDs splits a comma-separated list of Telegram user IDs.
func parseOperatorIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("operator id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

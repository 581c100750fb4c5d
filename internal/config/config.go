package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	DBDriver   string // "mysql" or "sqlite"
	DBDSN      string
	SQLitePath string

	JWTSecret     string
	AuthDevBypass bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Conversation driver
	ChatHistoryLimit int
	ChatMaxRounds    int

	// AI provider
	AIProvider        string
	AIModel           string
	AITemperature     float64
	AIMaxTokens       int
	OllamaBaseURL     string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// Nutrition search
	SearchBaseURL  string
	SearchCacheTTL time.Duration

	// Durable dispatch; empty RabbitURL means in-process fire-and-forget
	RabbitURL   string
	RabbitQueue string
}

func Load() Config {
	_ = godotenv.Load()

	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	// DSN demo:
	// app:apppass@tcp(127.0.0.1:3306)/nutrilog?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			"app", "apppass", "127.0.0.1", "3306", "nutrilog",
		)
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "nutrilog.db"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	historyLimit := 100
	if v := os.Getenv("CHAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			historyLimit = n
		}
	}

	maxRounds := 15
	if v := os.Getenv("CHAT_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxRounds = n
		}
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "openrouter"
	}
	aiModel := os.Getenv("AI_MODEL")
	if aiModel == "" {
		aiModel = "openai/gpt-4o-mini"
	}

	temperature := 0.2
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temperature = f
		}
	}
	maxTokens := 2048
	if v := os.Getenv("AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxTokens = n
		}
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}

	openRouterBaseURL := os.Getenv("OPENROUTER_BASE_URL")
	if openRouterBaseURL == "" {
		openRouterBaseURL = "https://openrouter.ai/api/v1"
	}

	searchBaseURL := os.Getenv("SEARCH_BASE_URL")
	if searchBaseURL == "" {
		searchBaseURL = "https://world.openfoodfacts.org"
	}

	searchTTL := 24 * time.Hour
	if v := os.Getenv("SEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			searchTTL = d
		}
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "chat_turns"
	}

	return Config{
		ListenAddr: listen,

		DBDriver:   driver,
		DBDSN:      dsn,
		SQLitePath: sqlitePath,

		JWTSecret:     secret,
		AuthDevBypass: os.Getenv("AUTH_DEV_BYPASS") == "1",

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		ChatHistoryLimit: historyLimit,
		ChatMaxRounds:    maxRounds,

		AIProvider:        aiProvider,
		AIModel:           aiModel,
		AITemperature:     temperature,
		AIMaxTokens:       maxTokens,
		OllamaBaseURL:     ollamaBaseURL,
		OpenRouterBaseURL: openRouterBaseURL,
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		SearchBaseURL:  searchBaseURL,
		SearchCacheTTL: searchTTL,

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: rabbitQueue,
	}
}

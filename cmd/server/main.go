package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nutrilog/nutrilog/internal/ai"
	"github.com/nutrilog/nutrilog/internal/cache"
	"github.com/nutrilog/nutrilog/internal/chat"
	"github.com/nutrilog/nutrilog/internal/config"
	"github.com/nutrilog/nutrilog/internal/db"
	"github.com/nutrilog/nutrilog/internal/food"
	"github.com/nutrilog/nutrilog/internal/httpapi"
	"github.com/nutrilog/nutrilog/internal/httpapi/handlers"
	"github.com/nutrilog/nutrilog/internal/logger"
	"github.com/nutrilog/nutrilog/internal/search"
	"github.com/nutrilog/nutrilog/internal/store/rabbitmq"
	"github.com/nutrilog/nutrilog/internal/tools"
)

func buildRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if model == "" {
			model = cfg.AIModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if model == "" {
			model = cfg.AIModel
		}
		return ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName,
			cfg.AITemperature, cfg.AIMaxTokens,
		), nil
	})
	return reg
}

func buildSearcher(cfg config.Config, log *logrus.Logger) search.Searcher {
	var searcher search.Searcher = search.NewClient(cfg.SearchBaseURL)
	if cfg.RedisAddr == "" {
		return searcher
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return search.NewCached(searcher, cache.NewRedisCache(rdb), cfg.SearchCacheTTL, log)
}

func main() {
	cfg := config.Load()
	log := logger.New()

	gdb, err := db.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}

	provider, err := buildRegistry(cfg).Get(context.Background(), cfg.AIProvider, cfg.AIModel)
	if err != nil {
		log.WithError(err).Fatal("ai provider init failed")
	}

	chatRepo := chat.NewRepo(gdb)
	events := chat.NewEventLog(chatRepo, log)
	chatSvc := chat.NewService(chatRepo, events)
	foods := food.NewRepo(gdb)
	exec := tools.NewExecutor(foods, buildSearcher(cfg, log))
	driver := chat.NewDriver(chatRepo, events, provider, exec, log, cfg.ChatHistoryLimit, cfg.ChatMaxRounds)

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.WithError(err).Fatal("rabbit connect failed")
		}
		defer rabbit.Close()
		log.WithField("queue", cfg.RabbitQueue).Info("chat turns dispatched via rabbitmq")
	}

	h := handlers.NewHandler(cfg, log, chatSvc, events, driver, foods, rabbit)
	r := httpapi.NewRouter(cfg, log, h)

	log.WithField("addr", cfg.ListenAddr).Info("server starting")
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

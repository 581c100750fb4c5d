package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nutrilog/nutrilog/internal/ai"
	"github.com/nutrilog/nutrilog/internal/cache"
	"github.com/nutrilog/nutrilog/internal/chat"
	"github.com/nutrilog/nutrilog/internal/config"
	"github.com/nutrilog/nutrilog/internal/db"
	"github.com/nutrilog/nutrilog/internal/food"
	"github.com/nutrilog/nutrilog/internal/logger"
	"github.com/nutrilog/nutrilog/internal/search"
	"github.com/nutrilog/nutrilog/internal/store/rabbitmq"
	"github.com/nutrilog/nutrilog/internal/tools"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func buildProvider(cfg config.Config) (ai.Provider, error) {
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
	return reg.Get(context.Background(), cfg.AIProvider, cfg.AIModel)
}

func main() {
	cfg := config.Load()
	log := logger.New()

	gdb, err := db.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.WithError(err).Fatal("ai provider init failed")
	}

	var searcher search.Searcher = search.NewClient(cfg.SearchBaseURL)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		searcher = search.NewCached(searcher, cache.NewRedisCache(rdb), cfg.SearchCacheTTL, log)
	}

	repo := chat.NewRepo(gdb)
	events := chat.NewEventLog(repo, log)
	exec := tools.NewExecutor(food.NewRepo(gdb), searcher)
	driver := chat.NewDriver(repo, events, provider, exec, log, cfg.ChatHistoryLimit, cfg.ChatMaxRounds)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("rabbit dial failed")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("rabbit channel failed")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.WithError(err).Fatal("queue declare failed")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.WithError(err).Fatal("qos failed")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Fatal("consume failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"queue":       cfg.RabbitQueue,
		"concurrency": concurrency,
	}).Info("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.TurnMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.WithField("worker", workerID).WithError(err).Warn("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleTurn(ctx, repo, driver, m.JobID); err != nil {
					log.WithFields(logrus.Fields{
						"worker": workerID,
						"job_id": m.JobID,
						"cost":   time.Since(start).String(),
					}).WithError(err).Warn("turn failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.WithFields(logrus.Fields{
						"worker": workerID,
						"job_id": m.JobID,
					}).WithError(err).Warn("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleTurn(ctx context.Context, repo *chat.Repo, driver *chat.Driver, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	if err := driver.Run(ctx, j.UserID, j.SessionID, j.Day); err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		// The error already surfaced on the event stream; the job state
		// is bookkeeping, not a retry signal, so don't requeue forever.
		return nil
	}

	return repo.MarkJobSucceeded(ctx, jobID)
}

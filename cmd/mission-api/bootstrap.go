package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sengp/missionbox/config"
	"github.com/sengp/missionbox/internal/broker/kafka"
	"github.com/sengp/missionbox/internal/cache/rediscache"
	"github.com/sengp/missionbox/internal/services/missions"
	"github.com/sengp/missionbox/internal/storage/pgmissions"
)

type missionAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     missionAPIOpts
	svc      *missions.Service
	rl       *rediscache.RateLimiter
	producer *kafka.Producer
	closeDB  func()
}

func mustBootstrapMissionAPI() *missionAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.MissionBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.MissionStatusChangedTopicName
	if topic == "" {
		topic = "mission.status.changed"
	}
	trackTTL := time.Duration(cfg.MissionBox.TrackingCacheTTLSeconds) * time.Second
	if trackTTL <= 0 {
		trackTTL = 10 * time.Minute
	}
	trackingLimit := int64(cfg.MissionBox.TrackingRateLimitPerMinute)
	if trackingLimit <= 0 {
		trackingLimit = 60
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	svc := missions.New(st, rc, producer, topic, trackTTL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &missionAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: missionAPIOpts{
			httpAddr:               httpAddr,
			swaggerPath:            swaggerPath,
			trackingLimitPerMinute: trackingLimit,
		},
		svc:      svc,
		rl:       rl,
		producer: producer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgmissions.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgmissions.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *missionAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *missionAPIApp) Run() error {
	return runMissionAPI(a.ctx, a.opts, a.svc, a.rl)
}

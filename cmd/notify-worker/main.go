package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sengp/missionbox/config"
	"github.com/sengp/missionbox/internal/broker/kafka"
	"github.com/sengp/missionbox/internal/cache/rediscache"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	topic := cfg.Kafka.MissionStatusChangedTopicName
	if topic == "" {
		topic = "mission.status.changed"
	}
	group := cfg.MissionBox.KafkaConsumerGroup
	if group == "" {
		group = "notify-worker"
	}
	queueCap := int64(cfg.MissionBox.NotificationQueueCap)
	if queueCap <= 0 {
		queueCap = 100
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, group)
	defer func() { _ = consumer.Close() }()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	queue := rediscache.NewNotificationQueue(redisAddr, queueCap)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := notifyWorkerOpts{
		httpAddr: cfg.MissionBox.WorkerHTTPAddr,
		topic:    topic,
		group:    group,
	}
	if err := runNotifyWorker(ctx, opts, consumer, queue); err != nil && err != context.Canceled {
		panic(err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"settingshub/internal/config"
	"settingshub/internal/events"
	"settingshub/internal/observability/alerting"
	"settingshub/internal/observability/metrics"
	"settingshub/internal/settings"
	mysqlstore "settingshub/internal/storage/mysql"
	redisstore "settingshub/internal/storage/redis"
)

// dependencies 汇总按配置构建的存储、事件与告警组件。
type dependencies struct {
	repository  settings.Repository
	publisher   events.Publisher
	localEvents *events.MemoryBus
	alerts      alerting.Dispatcher
	closers     []func() error
}

func (d *dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildDependencies(ctx context.Context, cfg *config.Config, registry *metrics.Registry) (*dependencies, error) {
	deps := &dependencies{publisher: events.Nop{}}

	repo, redisClient, err := buildRepository(ctx, cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.repository = metrics.InstrumentRepository(repo, registry)

	if err := buildPublisher(ctx, cfg, redisClient, deps); err != nil {
		deps.Close()
		return nil, err
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	deps.alerts = alerting.NewFanout(notifiers...)
	return deps, nil
}

// buildRepository 返回仓库；使用 Redis 存储时同时返回客户端供事件总线复用。
func buildRepository(ctx context.Context, cfg *config.Config, deps *dependencies) (settings.Repository, *goredis.Client, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return settings.NewMemoryRepository(), nil, nil
	case config.DriverRedis:
		client, err := redisstore.Open(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		repo, err := redisstore.NewRepository(client, redisstore.Config{Prefix: cfg.Storage.Redis.Prefix})
		if err != nil {
			return nil, nil, err
		}
		return repo, client, nil
	case config.DriverMySQL:
		repo, err := mysqlstore.NewSQLRepository(ctx, cfg.Storage.MySQL)
		if err != nil {
			return nil, nil, err
		}
		deps.closers = append(deps.closers, repo.Close)
		return repo, nil, nil
	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func buildPublisher(ctx context.Context, cfg *config.Config, storageClient *goredis.Client, deps *dependencies) error {
	switch cfg.Events.Driver {
	case config.DriverNone:
		return nil
	case config.DriverMemory:
		bus := events.NewMemoryBus(256)
		deps.publisher = bus
		deps.localEvents = bus
		deps.closers = append(deps.closers, bus.Close)
		return nil
	case config.DriverRedis:
		client, owns := storageClient, false
		if cfg.Events.Redis.URL != "" {
			opened, err := redisstore.Open(ctx, redisstore.ConnectionConfig{URL: cfg.Events.Redis.URL, ConnectRetries: cfg.Storage.Redis.ConnectRetries})
			if err != nil {
				return err
			}
			client, owns = opened, true
		}
		if client == nil {
			return errors.New("Redis 事件总线缺少连接")
		}
		bus, err := events.NewRedisBus(client, events.RedisBusConfig{Channel: cfg.Events.Redis.Channel, OwnsClient: owns})
		if err != nil {
			return err
		}
		deps.publisher = bus
		deps.closers = append(deps.closers, bus.Close)
		return nil
	case config.DriverRabbitMQ:
		bus, err := events.NewRabbitMQBus(events.RabbitMQConfig{
			URL:      cfg.Events.RabbitMQ.URL,
			Exchange: cfg.Events.RabbitMQ.Exchange,
			Durable:  cfg.Events.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		deps.publisher = bus
		deps.closers = append(deps.closers, bus.Close)
		return nil
	default:
		return fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
}

// drainLocalEvents 消费进程内事件并写入日志，避免缓冲区写满后阻塞写操作。
func drainLocalEvents(ctx context.Context, bus *events.MemoryBus, log *slog.Logger) error {
	err := bus.Subscribe(ctx, func(ctx context.Context, event events.Event) error {
		log.DebugContext(ctx, "配置变更",
			"event_id", event.ID, "type", string(event.Type), "group", event.Group, "names", event.Names)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

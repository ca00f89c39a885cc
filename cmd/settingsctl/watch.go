package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/urfave/cli/v2"

	"settingshub/internal/config"
	"settingshub/internal/events"
	redisstore "settingshub/internal/storage/redis"
)

// watchCommand 直接订阅事件总线并逐行输出变更事件。
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "订阅配置变更事件",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Value: config.DriverRedis, Usage: "redis 或 rabbitmq"},
			&cli.StringFlag{Name: "redis-url", Value: "redis://127.0.0.1:6379/0", EnvVars: []string{"SETTINGSHUB_EVENTS_REDIS_URL"}},
			&cli.StringFlag{Name: "channel", Value: "settingshub.events"},
			&cli.StringFlag{Name: "amqp-url", EnvVars: []string{"SETTINGSHUB_EVENTS_RABBITMQ_URL"}},
			&cli.StringFlag{Name: "exchange", Value: "settingshub.events"},
			&cli.BoolFlag{
				Name:    "durable",
				EnvVars: []string{"SETTINGSHUB_EVENTS_RABBITMQ_DURABLE"},
				Usage:   "与 settingsd 的 events.rabbitmq.durable 保持一致",
			},
			&cli.StringFlag{Name: "group", Usage: "只输出该分组的事件"},
		},
		Action: func(c *cli.Context) error {
			bus, err := openSubscriber(c.Context, c)
			if err != nil {
				return err
			}
			defer bus.Close()

			err = bus.Subscribe(c.Context, printEvents(c.App.Writer, c.String("group")))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func openSubscriber(ctx context.Context, c *cli.Context) (events.Subscriber, error) {
	switch c.String("driver") {
	case config.DriverRedis:
		client, err := redisstore.Open(ctx, redisstore.ConnectionConfig{URL: c.String("redis-url"), ConnectRetries: 3})
		if err != nil {
			return nil, err
		}
		bus, err := events.NewRedisBus(client, events.RedisBusConfig{Channel: c.String("channel"), OwnsClient: true})
		if err != nil {
			client.Close()
			return nil, err
		}
		return bus, nil
	case config.DriverRabbitMQ:
		if c.String("amqp-url") == "" {
			return nil, cli.Exit("rabbitmq 需要 --amqp-url", 2)
		}
		return events.NewRabbitMQBus(rabbitMQConfig(c))
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownDriver, c.String("driver"))
	}
}

func rabbitMQConfig(c *cli.Context) events.RabbitMQConfig {
	return events.RabbitMQConfig{
		URL:      c.String("amqp-url"),
		Exchange: c.String("exchange"),
		Durable:  c.Bool("durable"),
	}
}

// printEvents 返回把事件编码为单行 JSON 的处理函数。
func printEvents(w io.Writer, group string) events.Handler {
	var mu sync.Mutex
	return func(_ context.Context, event events.Event) error {
		if group != "" && event.Group != group {
			return nil
		}
		line, err := json.Marshal(event)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		_, err = fmt.Fprintln(w, string(line))
		return err
	}
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBusConfig 描述 Redis 事件通道。
type RedisBusConfig struct {
	Channel string
	// OwnsClient 为 true 时 Close 会关闭传入的客户端。
	OwnsClient bool
}

// RedisBus 通过 Redis PUBLISH/SUBSCRIBE 广播事件。
type RedisBus struct {
	client     redis.UniversalClient
	channel    string
	ownsClient bool
}

// NewRedisBus 基于已有的 Redis 客户端创建事件总线。
func NewRedisBus(client redis.UniversalClient, cfg RedisBusConfig) (*RedisBus, error) {
	if client == nil {
		return nil, errors.New("Redis 客户端不能为空")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "settingshub.events"
	}
	return &RedisBus{client: client, channel: channel, ownsClient: cfg.OwnsClient}, nil
}

// Channel 返回发布使用的频道名。
func (b *RedisBus) Channel() string { return b.channel }

// Publish 将事件序列化后发布到频道。
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅频道并把消息交给 handler，直到上下文取消。
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// 等待订阅确认，保证返回前不会漏掉随后发布的事件。
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("Redis 订阅失败: %w", err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return redis.ErrClosed
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				// 无法解析的消息直接丢弃。
				continue
			}
			_ = handler(ctx, event)
		}
	}
}

// Close 在持有客户端时关闭连接。
func (b *RedisBus) Close() error {
	if b == nil || !b.ownsClient || b.client == nil {
		return nil
	}
	return b.client.Close()
}

package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type 表示属性变更的种类。
type Type string

const (
	TypeCreated  Type = "created"
	TypeUpdated  Type = "updated"
	TypeDeleted  Type = "deleted"
	TypeLocked   Type = "locked"
	TypeUnlocked Type = "unlocked"
)

// Event 描述一次分组内的属性变更。
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Group      string    `json:"group"`
	Names      []string  `json:"names"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New 生成带唯一 ID 的事件。
func New(typ Type, group string, names ...string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Group:      group,
		Names:      append([]string(nil), names...),
		OccurredAt: time.Now().UTC(),
	}
}

// Handler 处理订阅到的事件。
type Handler func(ctx context.Context, event Event) error

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Subscriber 负责接收事件，直到上下文取消。
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Bus 同时具备发布与订阅能力。
type Bus interface {
	Publisher
	Subscriber
}

// Nop 丢弃所有事件，用于关闭事件通知的部署。
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }

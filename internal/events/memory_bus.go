package events

import (
	"context"
	"errors"
	"sync"
)

// ErrBusClosed 表示总线已经关闭。
var ErrBusClosed = errors.New("事件总线已关闭")

// MemoryBus 使用带缓冲的 channel 在进程内传递事件。
type MemoryBus struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryBus 创建内存事件总线。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{ch: make(chan Event, size), done: make(chan struct{})}
}

// Publish 写入事件；缓冲区满时阻塞，直到上下文取消或总线关闭。
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBusClosed
	case b.ch <- event:
		return nil
	}
}

// Subscribe 逐个处理事件，handler 的错误只会被忽略，不会中断订阅。
// 总线关闭后先处理完已缓冲的事件再返回 nil。
func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-b.ch:
			_ = handler(ctx, event)
		case <-b.done:
			for {
				select {
				case event := <-b.ch:
					_ = handler(ctx, event)
				default:
					return nil
				}
			}
		}
	}
}

// Close 关闭总线并唤醒阻塞中的发布者。
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

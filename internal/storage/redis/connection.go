package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	xerrors "settingshub/internal/errors"
)

// ConnectionConfig 描述 Redis 连接参数，URL 优先于 Address。
type ConnectionConfig struct {
	URL          string        `json:"url" yaml:"url" split_words:"true"`
	Address      string        `json:"address" yaml:"address" split_words:"true"`
	Password     string        `json:"password" yaml:"password" split_words:"true"`
	DB           int           `json:"db" yaml:"db" split_words:"true"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" split_words:"true"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" split_words:"true"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" split_words:"true"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" split_words:"true"`
	// ConnectRetries 为启动时 PING 失败后的最大重试次数，0 表示只尝试一次。
	ConnectRetries uint64 `json:"connect_retries" yaml:"connect_retries" split_words:"true"`
	Prefix         string `json:"prefix" yaml:"prefix" split_words:"true"`
}

// Options 把连接配置转换为 go-redis 的选项。
func (c ConnectionConfig) Options() (*goredis.Options, error) {
	var opts *goredis.Options
	if c.URL != "" {
		parsed, err := goredis.ParseURL(c.URL)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Redis URL 解析失败")
		}
		opts = parsed
	} else {
		if c.Address == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
		}
		opts = &goredis.Options{Addr: c.Address, Password: c.Password, DB: c.DB}
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	return opts, nil
}

// Open 建立连接并确认 Redis 可用，启动阶段按 Fibonacci 退避重试 PING。
func Open(ctx context.Context, cfg ConnectionConfig) (*goredis.Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opts)

	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err,
			fmt.Sprintf("连接 Redis %s 失败", opts.Addr), xerrors.WithRetryable(true))
	}
	return client, nil
}

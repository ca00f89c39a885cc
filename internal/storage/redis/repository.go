// Package redis 把配置分组保存在 Redis hash 中，每个分组的锁标记保存在独立的 set 中。
//
// 键名规则：分组为 "prefix.group"，锁集合为 "prefix.locks.group"；前缀为空时
// 分别是 "group" 与 "locks.group"。每个 hash 字段保存一个 JSON 编码的属性值。
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/settings"
)

// Config 描述仓库的键名前缀。
type Config struct {
	Prefix string `json:"prefix" yaml:"prefix"`
}

// ConfigFromMap 从通用配置表中读取 "prefix"，缺失或为 null 时视为无前缀。
func ConfigFromMap(values map[string]any) (Config, error) {
	raw, ok := values["prefix"]
	if !ok || raw == nil {
		return Config{}, nil
	}
	prefix, ok := raw.(string)
	if !ok {
		return Config{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("prefix 必须是字符串，实际为 %T", raw))
	}
	return Config{Prefix: strings.TrimSpace(prefix)}, nil
}

// Repository 基于 Redis 实现 settings.Repository。
//
// 传输层错误原样返回，不做重试。
type Repository struct {
	client goredis.Cmdable
	keys   settings.Keys
}

// NewRepository 使用已有的客户端构造仓库，客户端的生命周期由调用方管理。
func NewRepository(client goredis.Cmdable, cfg Config) (*Repository, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Redis 客户端不能为空")
	}
	return &Repository{client: client, keys: settings.Keys{Prefix: cfg.Prefix}}, nil
}

// Keys 返回仓库使用的键名规则。
func (r *Repository) Keys() settings.Keys { return r.keys }

// PropertiesInGroup 在同一个事务中读取 HKEYS 与 HVALS，保证字段与取值一一对应。
func (r *Repository) PropertiesInGroup(ctx context.Context, group string) (settings.Properties, error) {
	key := r.keys.Group(group)
	var (
		names  *goredis.StringSliceCmd
		values *goredis.StringSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		names = pipe.HKeys(ctx, key)
		values = pipe.HVals(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields, payloads := names.Val(), values.Val()
	if len(fields) != len(payloads) {
		return nil, xerrors.New(xerrors.CodeStorageFailure,
			fmt.Sprintf("分组 %s 的字段数 %d 与取值数 %d 不一致", key, len(fields), len(payloads)))
	}

	props := make(settings.Properties, 0, len(fields))
	for i, name := range fields {
		value, err := decodePayload(key, name, payloads[i])
		if err != nil {
			return nil, err
		}
		props = append(props, settings.Property{Name: name, Value: value})
	}
	return props, nil
}

func (r *Repository) PropertyExists(ctx context.Context, group, name string) (bool, error) {
	return r.client.HExists(ctx, r.keys.Group(group), name).Result()
}

// PropertyPayload 读取单个属性，字段不存在时返回 Null。
func (r *Repository) PropertyPayload(ctx context.Context, group, name string) (settings.Value, error) {
	key := r.keys.Group(group)
	payload, err := r.client.HGet(ctx, key, name).Result()
	if errors.Is(err, goredis.Nil) {
		return settings.Null(), nil
	}
	if err != nil {
		return settings.Value{}, err
	}
	return decodePayload(key, name, payload)
}

func (r *Repository) CreateProperty(ctx context.Context, group, name string, value settings.Value) error {
	payload, err := settings.Encode(value)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.keys.Group(group), name, string(payload)).Err()
}

// UpdatePropertiesPayload 用一条 HSET 写入全部字段，空列表不访问 Redis。
func (r *Repository) UpdatePropertiesPayload(ctx context.Context, group string, properties settings.Properties) error {
	if len(properties) == 0 {
		return nil
	}
	args := make([]any, 0, len(properties)*2)
	for _, prop := range properties {
		payload, err := settings.Encode(prop.Value)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "属性编码失败",
				xerrors.WithMetadata("property", prop.Name))
		}
		args = append(args, prop.Name, string(payload))
	}
	return r.client.HSet(ctx, r.keys.Group(group), args...).Err()
}

// DeleteProperty 删除字段，锁集合保持不变。
func (r *Repository) DeleteProperty(ctx context.Context, group, name string) error {
	return r.client.HDel(ctx, r.keys.Group(group), name).Err()
}

func (r *Repository) LockProperties(ctx context.Context, group string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return r.client.SAdd(ctx, r.keys.Locks(group), members(names)...).Err()
}

func (r *Repository) UnlockProperties(ctx context.Context, group string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return r.client.SRem(ctx, r.keys.Locks(group), members(names)...).Err()
}

// LockedProperties 返回锁集合成员，顺序不确定。
func (r *Repository) LockedProperties(ctx context.Context, group string) ([]string, error) {
	return r.client.SMembers(ctx, r.keys.Locks(group)).Result()
}

func members(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}

func decodePayload(key, field, payload string) (settings.Value, error) {
	value, err := settings.Decode([]byte(payload))
	if err != nil {
		return settings.Value{}, xerrors.Wrap(xerrors.CodeDecodeFailure, err, "属性载荷不是合法的 JSON",
			xerrors.WithMetadata("key", key),
			xerrors.WithMetadata("field", field))
	}
	return value, nil
}

var _ settings.Repository = (*Repository)(nil)

package settings

import "context"

// Repository 抽象了分组属性与锁标记的持久化。
//
// 实现不做重试，也不区分“属性不存在”与“属性值为 null”：PropertyPayload 在字段
// 缺失时返回 Null，调用方需要先用 PropertyExists 判断。
type Repository interface {
	PropertiesInGroup(ctx context.Context, group string) (Properties, error)
	PropertyExists(ctx context.Context, group, name string) (bool, error)
	PropertyPayload(ctx context.Context, group, name string) (Value, error)
	CreateProperty(ctx context.Context, group, name string, value Value) error
	UpdatePropertiesPayload(ctx context.Context, group string, properties Properties) error
	DeleteProperty(ctx context.Context, group, name string) error
	LockProperties(ctx context.Context, group string, names []string) error
	UnlockProperties(ctx context.Context, group string, names []string) error
	LockedProperties(ctx context.Context, group string) ([]string, error)
}

// Keys 根据前缀计算分组与锁集合在存储中的键名。
type Keys struct {
	Prefix string
}

// Group 返回 "prefix.group"，无前缀时返回 group。
func (k Keys) Group(group string) string {
	if k.Prefix == "" {
		return group
	}
	return k.Prefix + "." + group
}

// Locks 返回 "prefix.locks.group"，无前缀时返回 "locks.group"。
func (k Keys) Locks(group string) string {
	return k.Group("locks." + group)
}

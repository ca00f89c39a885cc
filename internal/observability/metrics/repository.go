package metrics

import (
	"context"
	"time"

	"settingshub/internal/settings"
)

// InstrumentedRepository 为每个仓库操作记录次数与耗时。
type InstrumentedRepository struct {
	next     settings.Repository
	registry *Registry
}

// InstrumentRepository 包装仓库；registry 为 nil 时使用默认实例。
func InstrumentRepository(next settings.Repository, registry *Registry) *InstrumentedRepository {
	if registry == nil {
		registry = defaultRegistry
	}
	return &InstrumentedRepository{next: next, registry: registry}
}

// track 在 defer 中调用，err 需以指针传入才能读到最终结果。
func (r *InstrumentedRepository) track(operation string, err *error) func() {
	start := time.Now()
	return func() {
		r.registry.ObserveOperation(operation, *err, time.Since(start))
	}
}

func (r *InstrumentedRepository) PropertiesInGroup(ctx context.Context, group string) (props settings.Properties, err error) {
	defer r.track("properties_in_group", &err)()
	return r.next.PropertiesInGroup(ctx, group)
}

func (r *InstrumentedRepository) PropertyExists(ctx context.Context, group, name string) (exists bool, err error) {
	defer r.track("property_exists", &err)()
	return r.next.PropertyExists(ctx, group, name)
}

func (r *InstrumentedRepository) PropertyPayload(ctx context.Context, group, name string) (value settings.Value, err error) {
	defer r.track("property_payload", &err)()
	return r.next.PropertyPayload(ctx, group, name)
}

func (r *InstrumentedRepository) CreateProperty(ctx context.Context, group, name string, value settings.Value) (err error) {
	defer r.track("create_property", &err)()
	return r.next.CreateProperty(ctx, group, name, value)
}

func (r *InstrumentedRepository) UpdatePropertiesPayload(ctx context.Context, group string, properties settings.Properties) (err error) {
	defer r.track("update_properties_payload", &err)()
	return r.next.UpdatePropertiesPayload(ctx, group, properties)
}

func (r *InstrumentedRepository) DeleteProperty(ctx context.Context, group, name string) (err error) {
	defer r.track("delete_property", &err)()
	return r.next.DeleteProperty(ctx, group, name)
}

func (r *InstrumentedRepository) LockProperties(ctx context.Context, group string, names []string) (err error) {
	defer r.track("lock_properties", &err)()
	return r.next.LockProperties(ctx, group, names)
}

func (r *InstrumentedRepository) UnlockProperties(ctx context.Context, group string, names []string) (err error) {
	defer r.track("unlock_properties", &err)()
	return r.next.UnlockProperties(ctx, group, names)
}

func (r *InstrumentedRepository) LockedProperties(ctx context.Context, group string) (names []string, err error) {
	defer r.track("locked_properties", &err)()
	return r.next.LockedProperties(ctx, group)
}

var _ settings.Repository = (*InstrumentedRepository)(nil)

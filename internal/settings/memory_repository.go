package settings

import (
	"context"
	"sync"
)

// MemoryRepository 在进程内保存属性，主要用于本地开发与测试。
type MemoryRepository struct {
	mu     sync.RWMutex
	groups map[string]Properties
	locks  map[string]map[string]struct{}
}

// NewMemoryRepository 创建一个空的内存仓库。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		groups: make(map[string]Properties),
		locks:  make(map[string]map[string]struct{}),
	}
}

func (m *MemoryRepository) PropertiesInGroup(_ context.Context, group string) (Properties, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(Properties{}, m.groups[group]...), nil
}

func (m *MemoryRepository) PropertyExists(_ context.Context, group, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[group].Get(name)
	return ok, nil
}

func (m *MemoryRepository) PropertyPayload(_ context.Context, group, name string) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, _ := m.groups[group].Get(name)
	return value, nil
}

func (m *MemoryRepository) CreateProperty(_ context.Context, group, name string, value Value) error {
	if _, err := Encode(value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	props := m.groups[group]
	props.Set(name, value)
	m.groups[group] = props
	return nil
}

func (m *MemoryRepository) UpdatePropertiesPayload(_ context.Context, group string, properties Properties) error {
	if len(properties) == 0 {
		return nil
	}
	for _, prop := range properties {
		if _, err := Encode(prop.Value); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	props := m.groups[group]
	for _, prop := range properties {
		props.Set(prop.Name, prop.Value)
	}
	m.groups[group] = props
	return nil
}

func (m *MemoryRepository) DeleteProperty(_ context.Context, group, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	props := m.groups[group].Without(name)
	if len(props) == 0 {
		delete(m.groups, group)
		return nil
	}
	m.groups[group] = props
	return nil
}

func (m *MemoryRepository) LockProperties(_ context.Context, group string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.locks[group]
	if set == nil {
		set = make(map[string]struct{}, len(names))
		m.locks[group] = set
	}
	for _, name := range names {
		set[name] = struct{}{}
	}
	return nil
}

func (m *MemoryRepository) UnlockProperties(_ context.Context, group string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.locks[group]
	for _, name := range names {
		delete(set, name)
	}
	if len(set) == 0 {
		delete(m.locks, group)
	}
	return nil
}

func (m *MemoryRepository) LockedProperties(_ context.Context, group string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.locks[group]))
	for name := range m.locks[group] {
		out = append(out, name)
	}
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)

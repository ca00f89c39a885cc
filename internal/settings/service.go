package settings

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/events"
	"settingshub/pkg/logger"
)

// SaveResult 汇总一次批量保存的结果。
type SaveResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

// Service 在 Repository 之上提供参数校验、锁检查、审计日志与变更事件。
type Service struct {
	repo      Repository
	publisher events.Publisher
	log       *slog.Logger
	audit     *slog.Logger
}

// ServiceOption 调整 Service 的可选依赖。
type ServiceOption func(*Service)

// WithPublisher 设置变更事件的投递目标。
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger 替换应用日志。
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAuditLogger 替换审计日志。
func WithAuditLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

// NewService 构造配置服务。
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, publisher: events.Nop{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.log == nil {
		s.log = logger.Named("settings")
	}
	if s.audit == nil {
		s.audit = logger.Audit()
	}
	return s
}

// Group 返回分组内全部属性，分组不存在时返回空列表。
func (s *Service) Group(ctx context.Context, group string) (Properties, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := validateGroup(group); err != nil {
		return nil, err
	}
	return s.repo.PropertiesInGroup(ctx, group)
}

// Property 返回属性值以及它是否存在，用来区分“不存在”和“值为 null”。
func (s *Service) Property(ctx context.Context, group, name string) (Value, bool, error) {
	if err := s.ready(); err != nil {
		return Value{}, false, err
	}
	if err := validateProperty(group, name); err != nil {
		return Value{}, false, err
	}
	exists, err := s.repo.PropertyExists(ctx, group, name)
	if err != nil || !exists {
		return Value{}, false, err
	}
	value, err := s.repo.PropertyPayload(ctx, group, name)
	if err != nil {
		return Value{}, false, err
	}
	return value, true, nil
}

// Create 写入单个属性，已存在时直接覆盖；属性被锁定时返回 CONFLICT。
func (s *Service) Create(ctx context.Context, group, name string, value Value) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := validateProperty(group, name); err != nil {
		return err
	}
	locked, err := s.repo.LockedProperties(ctx, group)
	if err != nil {
		return err
	}
	if slices.Contains(locked, name) {
		return xerrors.New(xerrors.CodeConflict, "属性已锁定",
			xerrors.WithMetadata("group", group), xerrors.WithMetadata("property", name))
	}
	if err := s.repo.CreateProperty(ctx, group, name, value); err != nil {
		return err
	}
	s.audit.InfoContext(ctx, "settings.create", "group", group, "name", name, "kind", value.Kind().String())
	s.publish(ctx, events.New(events.TypeCreated, group, name))
	return nil
}

// Save 批量更新属性，被锁定的属性保持原值并记入 Skipped。
func (s *Service) Save(ctx context.Context, group string, properties Properties) (SaveResult, error) {
	result := SaveResult{Updated: []string{}, Skipped: []string{}}
	if err := s.ready(); err != nil {
		return result, err
	}
	if err := validateGroup(group); err != nil {
		return result, err
	}
	for _, prop := range properties {
		if err := validateName(prop.Name); err != nil {
			return result, err
		}
	}

	locked, err := s.repo.LockedProperties(ctx, group)
	if err != nil {
		return result, err
	}
	lockedSet := make(map[string]struct{}, len(locked))
	for _, name := range locked {
		lockedSet[name] = struct{}{}
	}

	writable := make(Properties, 0, len(properties))
	for _, prop := range properties {
		if _, ok := lockedSet[prop.Name]; ok {
			result.Skipped = append(result.Skipped, prop.Name)
			continue
		}
		writable = append(writable, prop)
	}
	if len(writable) == 0 {
		return result, nil
	}

	if err := s.repo.UpdatePropertiesPayload(ctx, group, writable); err != nil {
		return result, err
	}
	result.Updated = writable.Names()

	s.audit.InfoContext(ctx, "settings.save", "group", group, "updated", result.Updated, "skipped", result.Skipped)
	s.publish(ctx, events.New(events.TypeUpdated, group, result.Updated...))
	return result, nil
}

// Delete 删除属性，锁标记保持不变。
func (s *Service) Delete(ctx context.Context, group, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := validateProperty(group, name); err != nil {
		return err
	}
	if err := s.repo.DeleteProperty(ctx, group, name); err != nil {
		return err
	}
	s.audit.InfoContext(ctx, "settings.delete", "group", group, "name", name)
	s.publish(ctx, events.New(events.TypeDeleted, group, name))
	return nil
}

// Lock 锁定属性，锁定与属性是否存在无关。
func (s *Service) Lock(ctx context.Context, group string, names []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	names, err := validateNames(group, names)
	if err != nil || len(names) == 0 {
		return err
	}
	if err := s.repo.LockProperties(ctx, group, names); err != nil {
		return err
	}
	s.audit.InfoContext(ctx, "settings.lock", "group", group, "names", names)
	s.publish(ctx, events.New(events.TypeLocked, group, names...))
	return nil
}

// Unlock 解除锁定，未锁定的名称被忽略。
func (s *Service) Unlock(ctx context.Context, group string, names []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	names, err := validateNames(group, names)
	if err != nil || len(names) == 0 {
		return err
	}
	if err := s.repo.UnlockProperties(ctx, group, names); err != nil {
		return err
	}
	s.audit.InfoContext(ctx, "settings.unlock", "group", group, "names", names)
	s.publish(ctx, events.New(events.TypeUnlocked, group, names...))
	return nil
}

// Locked 返回按名称排序的已锁定属性。
func (s *Service) Locked(ctx context.Context, group string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := validateGroup(group); err != nil {
		return nil, err
	}
	names, err := s.repo.LockedProperties(ctx, group)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WarnContext(ctx, "变更事件投递失败",
			"event_id", event.ID, "type", string(event.Type), "group", event.Group, "error", err)
	}
}

func (s *Service) ready() error {
	if s == nil || s.repo == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "配置服务未初始化")
	}
	return nil
}

func validateGroup(group string) error {
	if strings.TrimSpace(group) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "分组名不能为空")
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "属性名不能为空")
	}
	return nil
}

func validateProperty(group, name string) error {
	if err := validateGroup(group); err != nil {
		return err
	}
	return validateName(name)
}

// validateNames 校验名称并去重，保留首次出现的顺序。
func validateNames(group string, names []string) ([]string, error) {
	if err := validateGroup(group); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if err := validateName(name); err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

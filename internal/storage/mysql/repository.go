// Package mysql 提供基于 MySQL 的配置仓库，语义与 Redis 实现一致。
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "settingshub/internal/errors"
	"settingshub/internal/settings"
	"settingshub/pkg/logger"
)

const (
	selectGroupSQL = `SELECT name, payload FROM settings WHERE group_name = ? ORDER BY id ASC`
	existsSQL      = `SELECT COUNT(*) FROM settings WHERE group_name = ? AND name = ?`
	selectOneSQL   = `SELECT payload FROM settings WHERE group_name = ? AND name = ?`
	upsertSQL      = `INSERT INTO settings (group_name, name, payload, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	deleteSQL      = `DELETE FROM settings WHERE group_name = ? AND name = ?`
	selectLocksSQL = `SELECT name FROM setting_locks WHERE group_name = ? ORDER BY name ASC`
	insertLocksSQL = `INSERT IGNORE INTO setting_locks (group_name, name, created_at) VALUES `
	deleteLocksSQL = `DELETE FROM setting_locks WHERE group_name = ? AND name IN `
)

// SQLRepository 基于 MySQL 实现 settings.Repository。
//
// 属性顺序按 id 升序，即首次写入的顺序；覆盖写不会改变位置。
type SQLRepository struct {
	db   *sql.DB
	keys settings.Keys
	log  *slog.Logger
	now  func() time.Time
}

// NewSQLRepository 建立连接并执行内置迁移。
func NewSQLRepository(ctx context.Context, cfg Config) (*SQLRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := newSQLRepository(db, cfg.Prefix)
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func newSQLRepository(db *sql.DB, prefix string) *SQLRepository {
	return &SQLRepository{
		db:   db,
		keys: settings.Keys{Prefix: prefix},
		log:  logger.Named("storage.mysql"),
		now:  time.Now,
	}
}

func (s *SQLRepository) PropertiesInGroup(ctx context.Context, group string) (settings.Properties, error) {
	key := s.keys.Group(group)
	rows, err := s.db.QueryContext(ctx, selectGroupSQL, key)
	if err != nil {
		return nil, storageError(err, "查询分组失败", xerrors.WithMetadata("group", key))
	}
	defer rows.Close()

	props := settings.Properties{}
	for rows.Next() {
		var name, payload string
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, storageError(err, "解析属性行失败", xerrors.WithMetadata("group", key))
		}
		value, err := decodePayload(key, name, payload)
		if err != nil {
			return nil, err
		}
		props = append(props, settings.Property{Name: name, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "遍历属性失败", xerrors.WithMetadata("group", key))
	}
	return props, nil
}

func (s *SQLRepository) PropertyExists(ctx context.Context, group, name string) (bool, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, existsSQL, s.keys.Group(group), name).Scan(&count); err != nil {
		return false, storageError(err, "查询属性是否存在失败")
	}
	return count > 0, nil
}

// PropertyPayload 读取单个属性，不存在时返回 Null。
func (s *SQLRepository) PropertyPayload(ctx context.Context, group, name string) (settings.Value, error) {
	key := s.keys.Group(group)
	var payload string
	err := s.db.QueryRowContext(ctx, selectOneSQL, key, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Null(), nil
	}
	if err != nil {
		return settings.Value{}, storageError(err, "读取属性失败")
	}
	return decodePayload(key, name, payload)
}

func (s *SQLRepository) CreateProperty(ctx context.Context, group, name string, value settings.Value) error {
	payload, err := settings.Encode(value)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	if _, err := s.db.ExecContext(ctx, upsertSQL, s.keys.Group(group), name, string(payload), now, now); err != nil {
		return storageError(err, "写入属性失败")
	}
	return nil
}

// UpdatePropertiesPayload 在一个事务内逐条 upsert，任一失败则整体回滚。
func (s *SQLRepository) UpdatePropertiesPayload(ctx context.Context, group string, properties settings.Properties) error {
	if len(properties) == 0 {
		return nil
	}
	payloads := make([]string, len(properties))
	for i, prop := range properties {
		encoded, err := settings.Encode(prop.Value)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "属性编码失败",
				xerrors.WithMetadata("property", prop.Name))
		}
		payloads[i] = string(encoded)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "开启事务失败")
	}
	key := s.keys.Group(group)
	now := s.now().Unix()
	for i, prop := range properties {
		if _, err := tx.ExecContext(ctx, upsertSQL, key, prop.Name, payloads[i], now, now); err != nil {
			_ = tx.Rollback()
			return storageError(err, "批量写入属性失败", xerrors.WithMetadata("property", prop.Name))
		}
	}
	if err := tx.Commit(); err != nil {
		return storageError(err, "提交事务失败")
	}
	return nil
}

func (s *SQLRepository) DeleteProperty(ctx context.Context, group, name string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, s.keys.Group(group), name); err != nil {
		return storageError(err, "删除属性失败")
	}
	return nil
}

func (s *SQLRepository) LockProperties(ctx context.Context, group string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	key := s.keys.Group(group)
	now := s.now().Unix()
	args := make([]any, 0, len(names)*3)
	for _, name := range names {
		args = append(args, key, name, now)
	}
	query := insertLocksSQL + repeatPlaceholders("(?, ?, ?)", len(names))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storageError(err, "锁定属性失败")
	}
	return nil
}

func (s *SQLRepository) UnlockProperties(ctx context.Context, group string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := make([]any, 0, len(names)+1)
	args = append(args, s.keys.Group(group))
	for _, name := range names {
		args = append(args, name)
	}
	query := deleteLocksSQL + "(" + repeatPlaceholders("?", len(names)) + ")"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storageError(err, "解锁属性失败")
	}
	return nil
}

func (s *SQLRepository) LockedProperties(ctx context.Context, group string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, selectLocksSQL, s.keys.Group(group))
	if err != nil {
		return nil, storageError(err, "查询锁定属性失败")
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageError(err, "解析锁定属性失败")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "遍历锁定属性失败")
	}
	return names, nil
}

// Close 关闭底层连接池。
func (s *SQLRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func repeatPlaceholders(group string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = group
	}
	return strings.Join(parts, ", ")
}

func storageError(err error, message string, opts ...xerrors.Option) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message, opts...)
}

func decodePayload(group, name, payload string) (settings.Value, error) {
	value, err := settings.Decode([]byte(payload))
	if err != nil {
		return settings.Value{}, xerrors.Wrap(xerrors.CodeDecodeFailure, err,
			fmt.Sprintf("属性 %s.%s 的载荷不是合法的 JSON", group, name),
			xerrors.WithMetadata("group", group),
			xerrors.WithMetadata("field", name))
	}
	return value, nil
}

var _ settings.Repository = (*SQLRepository)(nil)

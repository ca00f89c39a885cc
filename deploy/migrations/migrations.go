package migrations

import "embed"

// Files 暴露 settings 与 setting_locks 两张表的 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS

// Package config 加载配置中心的启动配置。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	xerrors "settingshub/internal/errors"
	mysqlstore "settingshub/internal/storage/mysql"
	redisstore "settingshub/internal/storage/redis"
	"settingshub/pkg/logger"
)

// EnvPrefix 是环境变量覆盖的统一前缀，例如 SETTINGSHUB_STORAGE_DRIVER。
const EnvPrefix = "SETTINGSHUB"

// 存储与事件驱动名称。
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverMySQL    = "mysql"
	DriverRabbitMQ = "rabbitmq"
	DriverNone     = "none"
)

// Config 描述配置中心在启动阶段需要加载的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server" envconfig:"SERVER"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" envconfig:"STORAGE"`
	Events   EventsConfig   `json:"events" yaml:"events" envconfig:"EVENTS"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting" envconfig:"ALERTING"`
	Log      logger.Config  `json:"log" yaml:"log" envconfig:"LOG"`
}

// ServerConfig 控制 API 服务与指标服务的监听地址。
type ServerConfig struct {
	Address string `json:"address" yaml:"address" split_words:"true"`
	// MetricsAddress 为空时 /metrics 挂在 API 服务上。
	MetricsAddress  string        `json:"metrics_address" yaml:"metrics_address" split_words:"true"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" split_words:"true"`
}

// StorageConfig 选择仓库实现并描述各后端的连接信息。
type StorageConfig struct {
	Driver string                      `json:"driver" yaml:"driver" split_words:"true"`
	Redis  redisstore.ConnectionConfig `json:"redis" yaml:"redis" envconfig:"REDIS"`
	MySQL  mysqlstore.Config           `json:"mysql" yaml:"mysql" envconfig:"MYSQL"`
}

// EventsConfig 选择变更事件的投递方式。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver" split_words:"true"`
	Redis    RedisEvents    `json:"redis" yaml:"redis" envconfig:"REDIS"`
	RabbitMQ RabbitMQEvents `json:"rabbitmq" yaml:"rabbitmq" envconfig:"RABBITMQ"`
}

// RedisEvents 复用存储的 Redis 连接，只需指定频道。
type RedisEvents struct {
	Channel string `json:"channel" yaml:"channel" split_words:"true"`
	// URL 为空时沿用 storage.redis 的连接。
	URL string `json:"url" yaml:"url" split_words:"true"`
}

// RabbitMQEvents 描述 fanout exchange。
type RabbitMQEvents struct {
	URL      string `json:"url" yaml:"url" split_words:"true"`
	Exchange string `json:"exchange" yaml:"exchange" split_words:"true"`
	Durable  bool   `json:"durable" yaml:"durable" split_words:"true"`
}

// AlertingConfig 配置存储故障告警。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url" split_words:"true"`
}

// Load 解析 JSON 或 YAML 配置文件，补齐默认值后应用环境变量覆盖。
//
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败")
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, err
		}
		baseDir = filepath.Dir(path)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析环境变量失败")
	}
	cfg.applyDefaults(baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	case ".json", "":
		err = json.Unmarshal(content, cfg)
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的配置文件格式 %s", filepath.Ext(path)))
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析配置失败")
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Driver == DriverRedis && c.Storage.Redis.URL == "" && c.Storage.Redis.Address == "" {
		c.Storage.Redis.Address = "127.0.0.1:6379"
	}

	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))
	if c.Events.Driver == "" {
		c.Events.Driver = DriverNone
	}
	if c.Events.Redis.Channel == "" {
		c.Events.Redis.Channel = "settingshub.events"
	}
	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "settingshub.events"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled {
		if c.Log.Audit.Path == "" {
			c.Log.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else if !filepath.IsAbs(c.Log.Audit.Path) {
			c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
		}
	}
}

// Validate 检查驱动名称与必填的连接信息。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverMySQL:
		if strings.TrimSpace(c.Storage.MySQL.DSN) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "storage.mysql.dsn 不能为空")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的存储驱动 %q", c.Storage.Driver))
	}

	switch c.Events.Driver {
	case DriverNone, DriverMemory:
	case DriverRedis:
		if c.Storage.Driver != DriverRedis && c.Events.Redis.URL == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "events.redis.url 不能为空")
		}
	case DriverRabbitMQ:
		if c.Events.RabbitMQ.URL == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "events.rabbitmq.url 不能为空")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的事件驱动 %q", c.Events.Driver))
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// 默认值
const (
	defaultHost          = "0.0.0.0"
	defaultPort          = 1780
	defaultLogLevel      = "info"
	defaultLogMaxMB      = 10
	defaultRedisAddr     = "localhost:6379"
	defaultRecordTTL     = 24 * 7
	defaultPGMaxConns    = 10
	defaultSQLitePath    = "data/turnstile.db"
	defaultSaveTimeoutMS = 5000
	defaultTurnTimeout   = 30
	defaultGameTimeout   = 7200
	defaultRetention     = 300
	defaultInstrLimit    = 1_000_000
	defaultMaxConns      = 10000
	defaultMsgPerSecond  = 20
)

// 持久化驱动
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var knownDrivers = []string{DriverRedis, DriverPostgres, DriverSQLite}

// Config 服务端配置
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Log         LogConfig         `yaml:"log"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Game        GameConfig        `yaml:"game"`
	GameTypes   []GameTypeConfig  `yaml:"game_types"`
}

// ServerConfig HTTP / WebSocket 服务器配置
type ServerConfig struct {
	Host         string `yaml:"host" env:"SERVER_HOST"`
	Port         int    `yaml:"port" env:"SERVER_PORT"`
	DrainTimeout int    `yaml:"drain_timeout" env:"SERVER_DRAIN_TIMEOUT"` // 关闭前等待会话结束（秒），0 不等待
}

// Addr 监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DrainTimeoutDuration 返回关闭前等待会话结束的时长
func (c *ServerConfig) DrainTimeoutDuration() time.Duration {
	return time.Duration(c.DrainTimeout) * time.Second
}

// WebSocketConfig WebSocket 连接限制
type WebSocketConfig struct {
	AllowedOrigins       []string `yaml:"allowed_origins" env:"WS_ALLOWED_ORIGINS" envSeparator:","` // 空或 "*" 允许所有来源
	MaxConnections       int      `yaml:"max_connections" env:"WS_MAX_CONNECTIONS"`
	MaxMessagesPerSecond int      `yaml:"max_messages_per_second" env:"WS_MAX_MESSAGES_PER_SECOND"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	File   string `yaml:"file" env:"LOG_FILE"`
	MaxMB  int    `yaml:"max_mb" env:"LOG_MAX_MB"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr           string `yaml:"addr" env:"REDIS_ADDR"`
	Password       string `yaml:"password" env:"REDIS_PASSWORD"`
	DB             int    `yaml:"db" env:"REDIS_DB"`
	RecordTTLHours int    `yaml:"record_ttl_hours" env:"REDIS_RECORD_TTL_HOURS"` // 对局记录保留时长（小时）
}

// RecordTTLDuration 返回对局记录保留时长
func (c *RedisConfig) RecordTTLDuration() time.Duration {
	return time.Duration(c.RecordTTLHours) * time.Hour
}

// PostgresConfig Postgres 配置
type PostgresConfig struct {
	DSN      string `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
}

// SQLiteConfig SQLite 配置
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

// PersistenceConfig 对局记录持久化配置
type PersistenceConfig struct {
	Drivers       []string `yaml:"drivers" env:"PERSISTENCE_DRIVERS" envSeparator:","`
	SaveTimeoutMS int      `yaml:"save_timeout_ms" env:"PERSISTENCE_SAVE_TIMEOUT_MS"`
}

// SaveTimeoutDuration 返回单次保存超时时长
func (c *PersistenceConfig) SaveTimeoutDuration() time.Duration {
	return time.Duration(c.SaveTimeoutMS) * time.Millisecond
}

// Enabled 是否启用了某个驱动
func (c *PersistenceConfig) Enabled(driver string) bool {
	return slices.Contains(c.Drivers, driver)
}

// GameConfig 游戏配置，作为未指定时限的会话的默认值
type GameConfig struct {
	TurnTimeout int `yaml:"turn_timeout" env:"GAME_TURN_TIMEOUT"` // 回合超时（秒）
	GameTimeout int `yaml:"game_timeout" env:"GAME_GAME_TIMEOUT"` // 整局超时（秒）
	Retention   int `yaml:"retention" env:"GAME_RETENTION"`       // 结束后保留（秒）
}

// TurnTimeoutDuration 返回回合超时时长
func (c *GameConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// GameTimeoutDuration 返回整局超时时长
func (c *GameConfig) GameTimeoutDuration() time.Duration {
	return time.Duration(c.GameTimeout) * time.Second
}

// RetentionDuration 返回结束后在内存中保留的时长
func (c *GameConfig) RetentionDuration() time.Duration {
	return time.Duration(c.Retention) * time.Second
}

// GameTypeConfig Lua 脚本游戏类型
type GameTypeConfig struct {
	Name             string `yaml:"name"`
	Script           string `yaml:"script"`
	InstructionLimit int    `yaml:"instruction_limit"`
}

// Load 加载配置文件，再用环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadOrDefault 文件不存在时使用默认配置
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		cfg.applyDefaults()
		return cfg, nil
	}
	return cfg, err
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() error {
	sections := []any{&c.Server, &c.WebSocket, &c.Log, &c.Redis, &c.Postgres, &c.SQLite, &c.Persistence, &c.Game}
	for _, s := range sections {
		if err := env.Parse(s); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.WebSocket.MaxConnections == 0 {
		c.WebSocket.MaxConnections = defaultMaxConns
	}
	if c.WebSocket.MaxMessagesPerSecond == 0 {
		c.WebSocket.MaxMessagesPerSecond = defaultMsgPerSecond
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.MaxMB == 0 {
		c.Log.MaxMB = defaultLogMaxMB
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	if c.Redis.RecordTTLHours == 0 {
		c.Redis.RecordTTLHours = defaultRecordTTL
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = defaultPGMaxConns
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = defaultSQLitePath
	}
	if c.Persistence.SaveTimeoutMS == 0 {
		c.Persistence.SaveTimeoutMS = defaultSaveTimeoutMS
	}
	if c.Game.TurnTimeout == 0 {
		c.Game.TurnTimeout = defaultTurnTimeout
	}
	if c.Game.GameTimeout == 0 {
		c.Game.GameTimeout = defaultGameTimeout
	}
	if c.Game.Retention == 0 {
		c.Game.Retention = defaultRetention
	}
	for i := range c.GameTypes {
		if c.GameTypes[i].InstructionLimit == 0 {
			c.GameTypes[i].InstructionLimit = defaultInstrLimit
		}
	}
}

// Validate 检查配置是否完整
func (c *Config) Validate() error {
	var errs []error
	for _, d := range c.Persistence.Drivers {
		if !slices.Contains(knownDrivers, d) {
			errs = append(errs, fmt.Errorf("unknown persistence driver %q", d))
		}
	}
	if c.Persistence.Enabled(DriverPostgres) && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres driver enabled but postgres.dsn is empty"))
	}
	if c.Persistence.Enabled(DriverSQLite) && c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite driver enabled but sqlite.path is empty"))
	}

	seen := make(map[string]bool, len(c.GameTypes))
	for _, gt := range c.GameTypes {
		switch {
		case gt.Name == "":
			errs = append(errs, errors.New("game type without name"))
		case seen[gt.Name]:
			errs = append(errs, fmt.Errorf("duplicate game type %q", gt.Name))
		case gt.Script == "":
			errs = append(errs, fmt.Errorf("game type %q has no script", gt.Name))
		}
		seen[gt.Name] = true
	}
	if c.WebSocket.MaxConnections < 0 || c.WebSocket.MaxMessagesPerSecond < 0 {
		errs = append(errs, errors.New("websocket limits must not be negative"))
	}
	if c.Game.TurnTimeout < 0 || c.Game.GameTimeout < 0 || c.Game.Retention < 0 {
		errs = append(errs, errors.New("game timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

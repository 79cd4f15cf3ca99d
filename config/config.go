// Package config 加载服务配置：YAML 文件 + 环境变量覆盖 + 默认值。
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/neuralcalc/service"
)

// Config 是服务的配置结构（支持 YAML/JSON）。
type Config struct {
	Server    ServerConfig  `yaml:"server" json:"server"`
	Model     ModelConfig   `yaml:"model" json:"model"`
	Cache     CacheConfig   `yaml:"cache" json:"cache"`
	History   HistoryConfig `yaml:"history" json:"history"`
	Log       LogConfig     `yaml:"log" json:"log"`
	Evaluator string        `yaml:"evaluator" json:"evaluator"` // native / cel
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins" json:"cors_origins"` // 为空表示 "*"
}

// UnmarshalJSON 让 JSON 配置与 YAML 一样使用 "15s" 形式的时长，也兼容纳秒整数
func (c *ServerConfig) UnmarshalJSON(data []byte) error {
	type plain ServerConfig
	aux := struct {
		*plain
		ReadTimeout     jsonDuration `json:"read_timeout"`
		WriteTimeout    jsonDuration `json:"write_timeout"`
		ShutdownTimeout jsonDuration `json:"shutdown_timeout"`
	}{
		plain:           (*plain)(c),
		ReadTimeout:     jsonDuration(c.ReadTimeout),
		WriteTimeout:    jsonDuration(c.WriteTimeout),
		ShutdownTimeout: jsonDuration(c.ShutdownTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ReadTimeout = time.Duration(aux.ReadTimeout)
	c.WriteTimeout = time.Duration(aux.WriteTimeout)
	c.ShutdownTimeout = time.Duration(aux.ShutdownTimeout)
	return nil
}

type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		dur, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = jsonDuration(dur)
	case float64:
		*d = jsonDuration(time.Duration(x))
	case nil:
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// ModelConfig 模型配置
type ModelConfig struct {
	Type        string `yaml:"type" json:"type"` // local / tf_serving
	WeightsPath string `yaml:"weights_path" json:"weights_path"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Timeout     int    `yaml:"timeout" json:"timeout"` // 秒
	// Required 为 true 时模型加载失败直接退出；否则以「模型未加载」状态启动，计算接口返回 503
	Required bool        `yaml:"required" json:"required"`
	Auth     *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"` // tf_serving 认证
}

// AuthConfig 远端模型服务的认证配置
type AuthConfig struct {
	Type     string `yaml:"type" json:"type"` // basic / bearer / api_key
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Token    string `yaml:"token" json:"token"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// CacheConfig 预测缓存配置
type CacheConfig struct {
	Backend    string      `yaml:"backend" json:"backend"` // none / memory / redis
	TTL        int         `yaml:"ttl" json:"ttl"`         // 秒，0 表示不过期
	MaxEntries int         `yaml:"max_entries" json:"max_entries"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	DB       int    `yaml:"db" json:"db"`
	Password string `yaml:"password" json:"password"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// HistoryConfig 预测记录配置
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug / info / warn / error
	Format string `yaml:"format" json:"format"` // text / json
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Model: ModelConfig{
			Type:        string(service.ServiceTypeLocal),
			WeightsPath: "FNN2_weights.json",
			Name:        "fnn2",
			Timeout:     30,
		},
		Cache: CacheConfig{
			Backend:    "none",
			TTL:        3600,
			MaxEntries: 100000,
			Redis:      RedisConfig{Addr: "localhost:6379", Prefix: "neuralcalc:"},
		},
		History: HistoryConfig{
			Path: "data/history.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Evaluator: "native",
	}
}

// Load 加载配置：默认值 → 配置文件（path 为空则跳过）→ 环境变量，最后校验。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 按扩展名解析 YAML 或 JSON，未出现的字段保留默认值
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}
	return nil
}

// 环境变量名
const (
	EnvAddr        = "NEURALCALC_ADDR"
	EnvWeights     = "NEURALCALC_WEIGHTS"
	EnvModelType   = "NEURALCALC_MODEL_TYPE"
	EnvEndpoint    = "NEURALCALC_MODEL_ENDPOINT"
	EnvCache       = "NEURALCALC_CACHE"
	EnvRedisAddr   = "NEURALCALC_REDIS_ADDR"
	EnvHistory     = "NEURALCALC_HISTORY"
	EnvLogLevel    = "NEURALCALC_LOG_LEVEL"
	EnvLogFormat   = "NEURALCALC_LOG_FORMAT"
	EnvEvaluator   = "NEURALCALC_EVALUATOR"
	EnvModelNeeded = "NEURALCALC_MODEL_REQUIRED"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str(EnvAddr, &c.Server.Addr)
	str(EnvWeights, &c.Model.WeightsPath)
	str(EnvModelType, &c.Model.Type)
	str(EnvEndpoint, &c.Model.Endpoint)
	str(EnvCache, &c.Cache.Backend)
	str(EnvRedisAddr, &c.Cache.Redis.Addr)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)
	str(EnvEvaluator, &c.Evaluator)
	boolean(EnvHistory, &c.History.Enabled)
	boolean(EnvModelNeeded, &c.Model.Required)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if err := service.ValidateConfig(c.ServiceConfig()); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	switch c.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q (supported: none, memory, redis)", c.Cache.Backend)
	}
	switch c.Evaluator {
	case "", "native", "cel":
	default:
		return fmt.Errorf("unsupported evaluator %q (supported: native, cel)", c.Evaluator)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q (supported: text, json)", c.Log.Format)
	}
	return nil
}

// ServiceConfig 转换为 service 包的配置
func (c *Config) ServiceConfig() *service.ServiceConfig {
	sc := &service.ServiceConfig{
		Type:         service.ServiceType(c.Model.Type),
		WeightsPath:  c.Model.WeightsPath,
		Endpoint:     c.Model.Endpoint,
		ModelName:    c.Model.Name,
		ModelVersion: c.Model.Version,
		Timeout:      c.Model.Timeout,
	}
	if a := c.Model.Auth; a != nil {
		sc.Auth = &service.AuthConfig{
			Type:     a.Type,
			Username: a.Username,
			Password: a.Password,
			Token:    a.Token,
			APIKey:   a.APIKey,
		}
	}
	return sc
}

// NewLogger 按配置创建 slog.Logger
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", s)
	}
}

// Package config 提供了统一的配置加载与管理能力 (TOML 文件 + 环境变量 + 热更新).
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wyfcoding/rectstab/logging"
)

// EnvPrefix 环境变量前缀，例如 RECTSTAB_SERVER_ADDR 覆盖 server.addr.
const EnvPrefix = "RECTSTAB"

// Config 全局顶级配置结构.
type Config struct {
	Service ServiceConfig `mapstructure:"service" toml:"service"`
	Log     LogConfig     `mapstructure:"log"     toml:"log"`
	Index   IndexConfig   `mapstructure:"index"   toml:"index"`
	Query   QueryConfig   `mapstructure:"query"   toml:"query"`
	Server  ServerConfig  `mapstructure:"server"  toml:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" toml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" toml:"tracing"`
	Cache   CacheConfig   `mapstructure:"cache"   toml:"cache"`
}

// ServiceConfig 服务标识.
type ServiceConfig struct {
	Name        string `mapstructure:"name"       toml:"name"       validate:"required"`
	Version     string `mapstructure:"version"    toml:"version"`
	MachineID   int64  `mapstructure:"machine_id"   toml:"machine_id"   validate:"min=0,max=1023"`
	IDGenerator string `mapstructure:"id_generator" toml:"id_generator" validate:"oneof=snowflake sonyflake"` // 请求 ID 生成算法。
	IDEpoch     string `mapstructure:"id_epoch"     toml:"id_epoch"`                                          // 起始日期，格式 2006-01-02。
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format"      toml:"format"      validate:"oneof=json text"`
	File       string `mapstructure:"file"        toml:"file"`        // 日志文件路径，为空则只写控制台。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`    // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"` // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`     // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// IndexConfig 矩形索引数据源.
type IndexConfig struct {
	RectanglesFile string `mapstructure:"rectangles_file" toml:"rectangles_file"`
	ReloadSchedule string `mapstructure:"reload_schedule" toml:"reload_schedule"` // cron 表达式，如 "@every 10m"，为空不定时重建。
}

// QueryConfig 批量查询参数.
type QueryConfig struct {
	Workers   int `mapstructure:"workers"    toml:"workers"    validate:"min=1,max=1024"`
	MaxPoints int `mapstructure:"max_points" toml:"max_points" validate:"min=1"`
}

// ServerConfig HTTP 服务参数.
type ServerConfig struct {
	Addr            string          `mapstructure:"addr"             toml:"addr"             validate:"required"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"     toml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"    toml:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
	RateLimit       float64         `mapstructure:"rate_limit"       toml:"rate_limit"` // 每秒请求数，<=0 关闭限流。
	RateBurst       int             `mapstructure:"rate_burst"       toml:"rate_burst"`
	RateLimitIdle   time.Duration   `mapstructure:"rate_limit_idle"  toml:"rate_limit_idle"` // 客户端 IP 空闲多久后释放其令牌桶。
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"  toml:"request_timeout"` // 单个请求处理超时，<=0 关闭。
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes"   toml:"max_body_bytes"`  // 请求体上限，<=0 关闭。
	GRPCAddr        string          `mapstructure:"grpc_addr"        toml:"grpc_addr"`       // gRPC 健康检查地址，为空关闭。
	Keepalive       KeepaliveConfig `mapstructure:"keepalive"      toml:"keepalive"`
}

// KeepaliveConfig gRPC 连接保活参数.
type KeepaliveConfig struct {
	MaxConnectionIdle   time.Duration `mapstructure:"max_connection_idle"   toml:"max_connection_idle"`
	MaxConnectionAge    time.Duration `mapstructure:"max_connection_age"    toml:"max_connection_age"`
	Time                time.Duration `mapstructure:"time"                  toml:"time"`
	Timeout             time.Duration `mapstructure:"timeout"               toml:"timeout"`
	MinTime             time.Duration `mapstructure:"min_time"              toml:"min_time"`
	PermitWithoutStream bool          `mapstructure:"permit_without_stream" toml:"permit_without_stream"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Addr    string `mapstructure:"addr"    toml:"addr"` // 独立监听地址，为空时挂载在主 HTTP 服务上。
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// CacheConfig 查询结果缓存 (按压缩网格缓存).
type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"      toml:"ttl"`
	MaxMB   int           `mapstructure:"max_mb"   toml:"max_mb"`
	Enabled bool          `mapstructure:"enabled"  toml:"enabled"`
}

// LogOptions 转换为 logging.Config.
func (c *Config) LogOptions(module string) logging.Config {
	return logging.Config{
		Service:    c.Service.Name,
		Module:     module,
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

// setDefaults 注册所有默认值，保证未出现在文件中的键也能被环境变量覆盖.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "rectstab")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.machine_id", 1)
	v.SetDefault("service.id_generator", "snowflake")
	v.SetDefault("service.id_epoch", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("index.rectangles_file", "")
	v.SetDefault("index.reload_schedule", "")

	v.SetDefault("query.workers", 4)
	v.SetDefault("query.max_points", 100000)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.rate_limit_idle", 10*time.Minute)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 8<<20)
	v.SetDefault("server.grpc_addr", "")
	v.SetDefault("server.keepalive.max_connection_idle", 15*time.Minute)
	v.SetDefault("server.keepalive.max_connection_age", 2*time.Hour)
	v.SetDefault("server.keepalive.time", 2*time.Hour)
	v.SetDefault("server.keepalive.timeout", 20*time.Second)
	v.SetDefault("server.keepalive.min_time", 5*time.Minute)
	v.SetDefault("server.keepalive.permit_without_stream", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.addr", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "rectstab")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sampler_ratio", 1.0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_mb", 64)
}

// Loader 持有 viper 实例与热更新回调.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate

	mu       sync.Mutex
	onReload []func(*Config)
}

// NewLoader 创建配置加载器.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, validate: validator.New()}
}

// RegisterReloadHook 注册配置热更新回调。
func (l *Loader) RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, hook)
}

// Viper 返回底层 viper 实例 (用于绑定命令行 flag).
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load 读取配置。path 为空时仅使用默认值与环境变量.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
		l.v.SetConfigType("toml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	conf := new(Config)
	if err := l.v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := l.validate.Struct(conf); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return conf, nil
}

// Watch 监听配置文件变化，校验通过后更新日志级别并触发回调.
// 索引本身不可变，不会因为配置变化而重建。
func (l *Loader) Watch() {
	l.v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)

		conf := new(Config)
		if err := l.v.Unmarshal(conf); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := l.validate.Struct(conf); err != nil {
			slog.Error("reload config validation failed", "error", err)
			return
		}

		logging.SetLevel(conf.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")

		l.mu.Lock()
		hooks := append([]func(*Config){}, l.onReload...)
		l.mu.Unlock()
		for _, hook := range hooks {
			hook(conf)
		}
	})
	l.v.WatchConfig()
}

// Load 使用一个新的 Loader 读取配置的便捷函数.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// PrintWithMask 打印当前配置 (追踪端点脱敏).
func PrintWithMask(conf *Config) {
	masked := *conf
	if masked.Tracing.OTLPEndpoint != "" {
		masked.Tracing.OTLPEndpoint = "******"
	}
	data, err := json.Marshal(masked)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}
	slog.Info("effective config", "config", string(data))
}

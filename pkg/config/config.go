// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// gRPC 服务配置（健康检查与反射）
	GRPC GRPCConfig `mapstructure:"grpc"`
	// 数据库配置（catalog.driver = mysql 时使用）
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置（catalog.cache 开启时使用）
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置（submit.driver = kafka 时使用）
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 风险阈值
	Risk RiskConfig `mapstructure:"risk"`
	// 证明后端
	Attestation AttestationConfig `mapstructure:"attestation"`
	// 确认提交钩子
	Submit SubmitConfig `mapstructure:"submit"`
	// 资金池目录
	Catalog CatalogConfig `mapstructure:"catalog"`
	// 向导会话
	Wizard WizardConfig `mapstructure:"wizard"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
	// 每个客户端 IP 每秒请求数，0 表示不限流
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// 最大并发流数
	MaxConcurrentStreams int `mapstructure:"max_concurrent_streams"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, sqlite
	Driver string `mapstructure:"driver"`
	// 数据源名称
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
	// 启动时自动迁移表结构
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	MaxPoolSize int    `mapstructure:"max_pool_size"`
	// 连接超时（秒）
	ConnTimeout  int `mapstructure:"conn_timeout"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Addr host:port
func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// 单次写入超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level string `mapstructure:"level"`
	// 输出格式：json, text
	Format string `mapstructure:"format"`
	// 输出目标：stdout, file, both
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RiskConfig 健康因子分级阈值，十进制字符串
type RiskConfig struct {
	RiskyThreshold    string `mapstructure:"risky_threshold"`
	ModerateThreshold string `mapstructure:"moderate_threshold"`
	SafeThreshold     string `mapstructure:"safe_threshold"`
	// 健康因子低于此值时拒绝前进
	MinHealthFactor string `mapstructure:"min_health_factor"`
}

// AttestationConfig 证明后端配置
type AttestationConfig struct {
	// 驱动：simulated, remote
	Driver string `mapstructure:"driver"`
	// 远程证明服务地址
	Endpoint string `mapstructure:"endpoint"`
	// 模拟后端耗时
	Latency time.Duration `mapstructure:"latency"`
	// 模拟失败概率 0..1
	FailureRate float64 `mapstructure:"failure_rate"`
	// 调用方超时，0 表示不设超时
	Timeout time.Duration `mapstructure:"timeout"`
	// 熔断：连续失败次数与打开时长
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`
}

// SubmitConfig 确认提交钩子配置
type SubmitConfig struct {
	// 驱动：log, kafka
	Driver string `mapstructure:"driver"`
	Topic  string `mapstructure:"topic"`
}

// PoolSeed 内存目录种子数据
type PoolSeed struct {
	AssetID                 string `mapstructure:"asset_id"`
	Symbol                  string `mapstructure:"symbol"`
	Name                    string `mapstructure:"name"`
	UnitValue               string `mapstructure:"unit_value"`
	RatePct                 string `mapstructure:"rate_pct"`
	AvailableLiquidity      string `mapstructure:"available_liquidity"`
	UtilizationPct          string `mapstructure:"utilization_pct"`
	MinOperationAmount      string `mapstructure:"min_operation_amount"`
	LoanToValueMaxPct       string `mapstructure:"loan_to_value_max_pct"`
	LiquidationThresholdPct string `mapstructure:"liquidation_threshold_pct"`
	CollateralEnabled       bool   `mapstructure:"collateral_enabled"`
}

// HoldingSeed 内存钱包余额种子数据
type HoldingSeed struct {
	AccountID string `mapstructure:"account_id"`
	AssetID   string `mapstructure:"asset_id"`
	Quantity  string `mapstructure:"quantity"`
}

// CatalogConfig 资金池目录配置
type CatalogConfig struct {
	// 驱动：memory, mysql
	Driver string `mapstructure:"driver"`
	// 是否启用 Redis 读缓存
	Cache    bool          `mapstructure:"cache"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Pools    []PoolSeed    `mapstructure:"pools"`
	Holdings []HoldingSeed `mapstructure:"holdings"`
}

// WizardConfig 向导会话配置
type WizardConfig struct {
	// 终态会话保留时长
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// 过期清理周期
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// LoadWithDefaults 配置文件不存在时仅使用默认值与环境变量
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	_ = v.ReadInConfig()
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}

	for name, s := range map[string]string{
		"risk.risky_threshold":    c.Risk.RiskyThreshold,
		"risk.moderate_threshold": c.Risk.ModerateThreshold,
		"risk.safe_threshold":     c.Risk.SafeThreshold,
		"risk.min_health_factor":  c.Risk.MinHealthFactor,
	} {
		if _, err := decimal.NewFromString(s); err != nil {
			return fmt.Errorf("%s: invalid decimal %q", name, s)
		}
	}

	switch c.Catalog.Driver {
	case "memory":
	case "mysql":
		if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
			return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown catalog driver: %q", c.Catalog.Driver)
	}

	switch c.Attestation.Driver {
	case "simulated":
		if c.Attestation.FailureRate < 0 || c.Attestation.FailureRate > 1 {
			return fmt.Errorf("attestation.failure_rate must be within [0,1]")
		}
	case "remote":
		if c.Attestation.Endpoint == "" {
			return fmt.Errorf("attestation.endpoint is required for remote driver")
		}
	default:
		return fmt.Errorf("unknown attestation driver: %q", c.Attestation.Driver)
	}
	if c.Attestation.Timeout < 0 {
		return fmt.Errorf("attestation.timeout must not be negative")
	}

	switch c.Submit.Driver {
	case "log":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Submit.Topic == "" {
			return fmt.Errorf("kafka brokers and submit.topic are required for kafka submit driver")
		}
	default:
		return fmt.Errorf("unknown submit driver: %q", c.Submit.Driver)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "defiwizard")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("http.rate_burst", 20)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.max_concurrent_streams", 1000)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.write_timeout", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("risk.risky_threshold", "1.1")
	v.SetDefault("risk.moderate_threshold", "1.5")
	v.SetDefault("risk.safe_threshold", "2.0")
	v.SetDefault("risk.min_health_factor", "1.1")

	v.SetDefault("attestation.driver", "simulated")
	v.SetDefault("attestation.latency", "1500ms")
	v.SetDefault("attestation.failure_rate", 0)
	v.SetDefault("attestation.timeout", "0s")
	v.SetDefault("attestation.breaker_max_failures", 5)
	v.SetDefault("attestation.breaker_open_timeout", "30s")

	v.SetDefault("submit.driver", "log")
	v.SetDefault("submit.topic", "wizard.confirmed")

	v.SetDefault("catalog.driver", "memory")
	v.SetDefault("catalog.cache", false)
	v.SetDefault("catalog.cache_ttl", "30s")

	v.SetDefault("wizard.session_ttl", "15m")
	v.SetDefault("wizard.sweep_interval", "1m")
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug | release | test
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	BudgetEvents string `mapstructure:"budget_events"`
}

// StorageConfig 收据图片存储（GCS）
type StorageConfig struct {
	Bucket                string `mapstructure:"bucket"`
	CredentialsFile       string `mapstructure:"credentials_file"`
	StagingPrefix         string `mapstructure:"staging_prefix"`
	ReceiptPrefix         string `mapstructure:"receipt_prefix"`
	StagingRetentionHours int    `mapstructure:"staging_retention_hours"`
	PublicBaseURL         string `mapstructure:"public_base_url"`
	MaxUploadMB           int    `mapstructure:"max_upload_mb"`
}

type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	SessionHours int    `mapstructure:"session_hours"`
	CookieName   string `mapstructure:"cookie_name"`
	Secure       bool   `mapstructure:"secure"`
}

type BusinessConfig struct {
	MaxRetryCount        int `mapstructure:"max_retry_count"`
	DBRetryAttempts      int `mapstructure:"db_retry_attempts"`
	DBRetryBaseDelayMs   int `mapstructure:"db_retry_base_delay_ms"`
	LockTimeoutSeconds   int `mapstructure:"lock_timeout_seconds"`
	DashboardCacheTTLSec int `mapstructure:"dashboard_cache_ttl_sec"`
}

// MinJWTSecretLength HS256 密钥的最小长度（字节）
const MinJWTSecretLength = 32

var ErrWeakJWTSecret = fmt.Errorf("auth.jwt_secret 至少需要 %d 字节", MinJWTSecretLength)

var GlobalConfig *Config

// LoadConfig 加载配置文件，环境变量 ANGGARAN_<SECTION>_<KEY> 可覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ANGGARAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	GlobalConfig = config
	return config, nil
}

// Validate 启动服务前检查必须显式配置的项
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return ErrWeakJWTSecret
	}
	return nil
}

// Default 返回不依赖配置文件的默认配置（测试与 CLI 使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	config := &Config{}
	_ = v.Unmarshal(config)
	return config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic.budget_events", "anggaran.budget-events")

	v.SetDefault("storage.staging_prefix", "staging")
	v.SetDefault("storage.receipt_prefix", "receipts")
	v.SetDefault("storage.staging_retention_hours", 24)
	v.SetDefault("storage.max_upload_mb", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_hours", 8)
	v.SetDefault("auth.cookie_name", "anggaran_session")
	v.SetDefault("auth.secure", false)

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.db_retry_attempts", 3)
	v.SetDefault("business.db_retry_base_delay_ms", 100)
	v.SetDefault("business.lock_timeout_seconds", 10)
	v.SetDefault("business.dashboard_cache_ttl_sec", 60)
}

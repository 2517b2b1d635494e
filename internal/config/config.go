package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	JWT        JWTConfig        `yaml:"jwt" mapstructure:"jwt"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Security   SecurityConfig   `yaml:"security" mapstructure:"security"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Name            string        `yaml:"name" mapstructure:"name"`
	SSLMode         string        `yaml:"sslmode" mapstructure:"sslmode"`
	TimeZone        string        `yaml:"timezone" mapstructure:"timezone"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret" mapstructure:"secret"`
	ExpiresIn time.Duration `yaml:"expires_in" mapstructure:"expires_in"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // json, text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // MB
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // days
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

type MonitoringConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	MetricsPath string        `yaml:"metrics_path" mapstructure:"metrics_path"`
	Tracing     TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`         // OTLP gRPC 端点，例如 http://otel-collector:4317
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`         // 是否使用明文（本地/开发）
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `yaml:"cors" mapstructure:"cors"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

type RateLimitingConfig struct {
	Enabled           bool     `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int      `yaml:"burst" mapstructure:"burst"`
	WhitelistIPs      []string `yaml:"whitelist_ips" mapstructure:"whitelist_ips"`
}

// AutomationConfig 自动化引擎配置
type AutomationConfig struct {
	Enabled             bool                 `yaml:"enabled" mapstructure:"enabled"`
	SweepInitialDelay   time.Duration        `yaml:"sweep_initial_delay" mapstructure:"sweep_initial_delay"`
	SweepInterval       time.Duration        `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	RuleRefreshInterval time.Duration        `yaml:"rule_refresh_interval" mapstructure:"rule_refresh_interval"`
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxFailures     int           `yaml:"max_failures" mapstructure:"max_failures"`
	ResetTimeout    time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
	HalfOpenMaxReqs int           `yaml:"half_open_max_requests" mapstructure:"half_open_max_requests"`
}

// Load 在默认配置之上合并 viper 已读取的配置
func Load() *Config {
	config := GetDefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		panic(err)
	}
	return config
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "dealflow",
			SSLMode:         "disable",
			TimeZone:        "UTC",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		JWT: JWTConfig{
			Secret:    "default-secret-key",
			ExpiresIn: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/dealflow.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "dealflow",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
				AllowedHeaders: []string{"*"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
		Automation: AutomationConfig{
			Enabled:             true,
			SweepInitialDelay:   2 * time.Second,
			SweepInterval:       time.Hour,
			RuleRefreshInterval: time.Minute,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:         true,
				MaxFailures:     5,
				ResetTimeout:    60 * time.Second,
				HalfOpenMaxReqs: 3,
			},
		},
	}
}

// DSN 组装 Postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone)
}

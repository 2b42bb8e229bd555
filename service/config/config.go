package config

import (
	"time"
)

// ApplicationConfig 应用完整配置
type ApplicationConfig struct {
	App       AppConfig       `json:"app" yaml:"app"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Kafka     KafkaConfig     `json:"kafka" yaml:"kafka"`
	Scan      ScanConfig      `json:"scan" yaml:"scan"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Detectors DetectorsConfig `json:"detectors" yaml:"detectors"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Environment string `json:"environment" yaml:"environment"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int        `json:"port" yaml:"port"`
	BaseContext string     `json:"base_context" yaml:"base_context"`
	CORS        CORSConfig `json:"cors" yaml:"cors"`
}

// CORSConfig CORS配置
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers"`
}

// DatabaseConfig 数据库配置，driver 为 postgres 或 sqlite
type DatabaseConfig struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn" yaml:"dsn"`
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	Database     string `json:"database" yaml:"database"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	SSLMode      string `json:"ssl_mode" yaml:"ssl_mode"`
	Schema       string `json:"schema" yaml:"schema"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// RedisConfig Redis配置，用于调度锁与扫描触发限流
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// KafkaConfig Kafka事件配置
type KafkaConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Brokers   []string `json:"brokers" yaml:"brokers"`
	ScanTopic string   `json:"scan_topic" yaml:"scan_topic"`
}

// ScanConfig 扫描引擎配置
type ScanConfig struct {
	Workers            int `json:"workers" yaml:"workers"`
	InsertBatchSize    int `json:"insert_batch_size" yaml:"insert_batch_size"`
	RateLimitPerMinute int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// SchedulerConfig 周期扫描调度配置
type SchedulerConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	LockTTL time.Duration `json:"lock_ttl" yaml:"lock_ttl"`
}

// DetectorsConfig 六个模式检测器的参数
type DetectorsConfig struct {
	Structuring      StructuringConfig      `json:"structuring" yaml:"structuring"`
	RapidTransfers   RapidTransfersConfig   `json:"rapid_transfers" yaml:"rapid_transfers"`
	HighRiskAccount  HighRiskAccountConfig  `json:"high_risk_account" yaml:"high_risk_account"`
	UnusualFrequency UnusualFrequencyConfig `json:"unusual_frequency" yaml:"unusual_frequency"`
	RoundAmount      RoundAmountConfig      `json:"round_amount" yaml:"round_amount"`
	DailyStructuring DailyStructuringConfig `json:"daily_structuring" yaml:"daily_structuring"`
}

// StructuringConfig 拆分交易检测参数，金额区间左闭右开
type StructuringConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	WindowHours int     `json:"window_hours" yaml:"window_hours"`
	MinAmount   float64 `json:"min_amount" yaml:"min_amount"`
	MaxAmount   float64 `json:"max_amount" yaml:"max_amount"`
	MinCount    int     `json:"min_count" yaml:"min_count"`
}

// RapidTransfersConfig 快速转账检测参数
type RapidTransfersConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	WindowHours   int      `json:"window_hours" yaml:"window_hours"`
	MinTransfers  int      `json:"min_transfers" yaml:"min_transfers"`
	TransferTypes []string `json:"transfer_types" yaml:"transfer_types"`
}

// HighRiskAccountConfig 高风险账户检测参数
type HighRiskAccountConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	WindowDays     int  `json:"window_days" yaml:"window_days"`
	MinViolations  int  `json:"min_violations" yaml:"min_violations"`
	CriticalWeight int  `json:"critical_weight" yaml:"critical_weight"`
	HighWeight     int  `json:"high_weight" yaml:"high_weight"`
}

// UnusualFrequencyConfig 异常频率检测参数
type UnusualFrequencyConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	WindowDays      int     `json:"window_days" yaml:"window_days"`
	BaselineWindows int     `json:"baseline_windows" yaml:"baseline_windows"`
	Multiplier      float64 `json:"multiplier" yaml:"multiplier"`
}

// RoundAmountConfig 整数金额聚集检测参数
type RoundAmountConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	WindowDays int     `json:"window_days" yaml:"window_days"`
	MinAmount  float64 `json:"min_amount" yaml:"min_amount"`
	Modulus    float64 `json:"modulus" yaml:"modulus"`
	MinCount   int     `json:"min_count" yaml:"min_count"`
}

// DailyStructuringConfig 单日拆分检测参数
type DailyStructuringConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	WindowDays    int     `json:"window_days" yaml:"window_days"`
	MinCount      int     `json:"min_count" yaml:"min_count"`
	MaxDailyTotal float64 `json:"max_daily_total" yaml:"max_daily_total"`
}

// DefaultDetectorsConfig 检测器默认参数
func DefaultDetectorsConfig() DetectorsConfig {
	return DetectorsConfig{
		Structuring: StructuringConfig{
			Enabled:     true,
			WindowHours: 24,
			MinAmount:   9000,
			MaxAmount:   10000,
			MinCount:    3,
		},
		RapidTransfers: RapidTransfersConfig{
			Enabled:       true,
			WindowHours:   24,
			MinTransfers:  5,
			TransferTypes: []string{"WIRE", "ACH"},
		},
		HighRiskAccount: HighRiskAccountConfig{
			Enabled:        true,
			WindowDays:     30,
			MinViolations:  5,
			CriticalWeight: 10,
			HighWeight:     5,
		},
		UnusualFrequency: UnusualFrequencyConfig{
			Enabled:         true,
			WindowDays:      7,
			BaselineWindows: 4,
			Multiplier:      3,
		},
		RoundAmount: RoundAmountConfig{
			Enabled:    true,
			WindowDays: 30,
			MinAmount:  5000,
			Modulus:    1000,
			MinCount:   3,
		},
		DailyStructuring: DailyStructuringConfig{
			Enabled:       true,
			WindowDays:    30,
			MinCount:      3,
			MaxDailyTotal: 10000,
		},
	}
}

// DefaultConfig 默认配置
func DefaultConfig() *ApplicationConfig {
	return &ApplicationConfig{
		App: AppConfig{
			Name:        "PolicyGuard Service",
			Version:     "1.0.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Port: 80,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Tenant-ID"},
			},
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "postgres",
			Username:     "postgres",
			SSLMode:      "disable",
			Schema:       "public",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Redis: RedisConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    6379,
		},
		Kafka: KafkaConfig{
			Enabled:   false,
			ScanTopic: "policyguard.scan-completed",
		},
		Scan: ScanConfig{
			Workers:            4,
			InsertBatchSize:    500,
			RateLimitPerMinute: 10,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			LockTTL: 30 * time.Minute,
		},
		Detectors: DefaultDetectorsConfig(),
	}
}

/*
 * @module service/config/config_manager
 * @description 配置管理器，负责配置加载、环境变量覆盖和配置验证
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 配置文件加载 -> 默认值兜底 -> 环境变量覆盖 -> 配置验证
 * @rules 文件中缺失的字段保留默认值；验证失败时拒绝启动
 * @dependencies gopkg.in/yaml.v3, github.com/spf13/cast
 * @refs service/init.go
 */

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ConfigManager 配置管理器
type ConfigManager struct {
	config     *ApplicationConfig
	configLock sync.RWMutex

	// 配置文件路径
	configFilePaths []string

	// 环境变量
	envPrefix string
	lookupEnv func(string) (string, bool)
}

// NewConfigManager 创建配置管理器实例，未指定路径时依次尝试 config.yaml 与 config.json
func NewConfigManager(paths ...string) *ConfigManager {
	if len(paths) == 0 {
		paths = []string{"config.yaml", "config.json"}
	}
	return &ConfigManager{
		configFilePaths: paths,
		envPrefix:       "POLICYGUARD_",
		lookupEnv:       os.LookupEnv,
	}
}

// LoadConfig 加载配置
func (c *ConfigManager) LoadConfig() error {
	c.configLock.Lock()
	defer c.configLock.Unlock()

	// 1. 尝试从文件加载配置，失败时使用默认配置
	config, err := c.loadConfigFromFile()
	if err != nil {
		slog.Info("未加载配置文件，使用默认配置", "reason", err.Error())
		config = DefaultConfig()
	}

	// 2. 应用环境变量覆盖
	if err := c.applyEnvironmentOverrides(config); err != nil {
		return fmt.Errorf("环境变量覆盖失败: %w", err)
	}

	// 3. 验证配置
	if err := Validate(config); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	c.config = config
	return nil
}

// GetConfig 获取完整配置
func (c *ConfigManager) GetConfig() *ApplicationConfig {
	c.configLock.RLock()
	defer c.configLock.RUnlock()
	return c.config
}

// 从文件加载配置，文件内容覆盖在默认配置之上
func (c *ConfigManager) loadConfigFromFile() (*ApplicationConfig, error) {
	var configData []byte
	var configPath string

	for _, path := range c.configFilePaths {
		data, err := os.ReadFile(path)
		if err == nil {
			configData = data
			configPath = path
			break
		}
	}

	if configData == nil {
		return nil, fmt.Errorf("未找到可用的配置文件")
	}

	config := DefaultConfig()

	var err error
	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(configData, config)
	case ".json":
		err = json.Unmarshal(configData, config)
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", configPath, err)
	}

	slog.Info("配置文件加载成功", "path", configPath)
	return config, nil
}

// 应用环境变量覆盖
func (c *ConfigManager) applyEnvironmentOverrides(config *ApplicationConfig) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := c.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := c.lookupEnv(key); ok && v != "" {
			n, err := cast.ToIntE(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q 不是整数", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := c.lookupEnv(key); ok && v != "" {
			b, err := cast.ToBoolE(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q 不是布尔值", key, v))
				return
			}
			*dst = b
		}
	}

	// 与部署环境保持一致的通用变量
	num("LISTEN_PORT", &config.Server.Port)
	str("BASE_CONTEXT", &config.Server.BaseContext)
	if v, ok := c.lookupEnv("DATABASE_URL"); ok && v != "" {
		config.Database.DSN = v
		config.Database.Driver = "postgres"
	}
	str("DB_HOST", &config.Database.Host)
	num("DB_PORT", &config.Database.Port)
	str("DB_USER", &config.Database.Username)
	str("DB_PASSWORD", &config.Database.Password)
	str("DB_NAME", &config.Database.Database)
	str("DB_SSLMODE", &config.Database.SSLMode)
	str("DB_SCHEMA", &config.Database.Schema)
	str("REDIS_HOST", &config.Redis.Host)
	num("REDIS_PORT", &config.Redis.Port)
	str("REDIS_PASSWORD", &config.Redis.Password)
	num("REDIS_DB", &config.Redis.DB)

	// 服务专属变量
	p := c.envPrefix
	str(p+"DB_DRIVER", &config.Database.Driver)
	str(p+"DB_DSN", &config.Database.DSN)
	str(p+"LOG_LEVEL", &config.Logging.Level)
	flag(p+"REDIS_ENABLED", &config.Redis.Enabled)
	flag(p+"KAFKA_ENABLED", &config.Kafka.Enabled)
	str(p+"KAFKA_SCAN_TOPIC", &config.Kafka.ScanTopic)
	if v, ok := c.lookupEnv(p + "KAFKA_BROKERS"); ok && v != "" {
		config.Kafka.Brokers = splitList(v)
	}
	num(p+"SCAN_WORKERS", &config.Scan.Workers)
	num(p+"SCAN_INSERT_BATCH_SIZE", &config.Scan.InsertBatchSize)
	num(p+"SCAN_RATE_LIMIT_PER_MINUTE", &config.Scan.RateLimitPerMinute)
	flag(p+"SCHEDULER_ENABLED", &config.Scheduler.Enabled)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate 验证配置
func Validate(config *ApplicationConfig) error {
	if config.App.Name == "" {
		return fmt.Errorf("应用名称不能为空")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("服务器端口无效: %d", config.Server.Port)
	}

	switch config.Database.Driver {
	case "postgres":
		if config.Database.DSN == "" && config.Database.Host == "" {
			return fmt.Errorf("数据库主机不能为空")
		}
	case "sqlite":
		if config.Database.DSN == "" {
			return fmt.Errorf("sqlite 需要配置 dsn")
		}
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", config.Database.Driver)
	}

	if config.Scan.Workers <= 0 {
		return fmt.Errorf("扫描并发数必须大于 0")
	}
	if config.Scan.InsertBatchSize <= 0 {
		return fmt.Errorf("批量写入大小必须大于 0")
	}

	if config.Kafka.Enabled && len(config.Kafka.Brokers) == 0 {
		return fmt.Errorf("启用 Kafka 时必须配置 brokers")
	}

	d := config.Detectors
	if d.Structuring.MinAmount >= d.Structuring.MaxAmount {
		return fmt.Errorf("structuring.min_amount 必须小于 max_amount")
	}
	if d.RoundAmount.Modulus <= 0 {
		return fmt.Errorf("round_amount.modulus 必须大于 0")
	}
	if d.UnusualFrequency.BaselineWindows <= 0 {
		return fmt.Errorf("unusual_frequency.baseline_windows 必须大于 0")
	}

	return nil
}

// PostgresDSN 根据分离的配置项构建连接字符串
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=UTC",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode, d.Schema)
}

// RedisAddr Redis 地址
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

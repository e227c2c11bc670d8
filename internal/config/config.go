// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（Redis 密码）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"songwatch/internal/breaker"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Redis   RedisConfig   `yaml:"redis"`
	Stream  StreamConfig  `yaml:"stream"`
	Breaker BreakerConfig `yaml:"breaker"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 监控器自身 HTTP 服务（快照查询 + 熔断器管理 + 指标）
type ServerConfig struct {
	Port string `yaml:"port"`
}

// BackendConfig 生成流水线后端
type BackendConfig struct {
	URL string `yaml:"url"` // ws:// 或 wss:// 基地址
}

// RedisConfig 快照镜像 Redis（可选，Host 为空时禁用）
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// StreamConfig 事件流客户端参数
type StreamConfig struct {
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// BreakerConfig 熔断器参数
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

// LogConfig 日志参数
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 最终配置
type Config struct {
	Env           Environment
	APIPort       string
	BackendURL    string
	RedisAddr     string // 为空表示禁用快照镜像
	RedisPassword string
	RedisDB       int
	Stream        StreamConfig
	Breaker       BreakerConfig
	Log           LogConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖，构建最终配置
func Load() *Config {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:           env,
		APIPort:       getEnv("API_PORT", yamlCfg.Server.Port),
		BackendURL:    getEnv("BACKEND_URL", yamlCfg.Backend.URL),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       yamlCfg.Redis.DB,
		Stream:        yamlCfg.Stream,
		Breaker:       yamlCfg.Breaker,
		Log:           yamlCfg.Log,
	}

	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		cfg.RedisAddr = addr
	} else if yamlCfg.Redis.Host != "" {
		cfg.RedisAddr = fmt.Sprintf("%s:%d", yamlCfg.Redis.Host, yamlCfg.Redis.Port)
	}

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{
		Server:  ServerConfig{Port: "8090"},
		Backend: BackendConfig{URL: "ws://localhost:8080"},
		Redis:   RedisConfig{Port: 6379, DB: 0},
		Stream: StreamConfig{
			DialTimeout:    10 * time.Second,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			MonitoringPeriod: 60 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}

	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// BreakerConfig 转换为熔断器包的配置类型
func (c *Config) BreakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		MonitoringPeriod: c.Breaker.MonitoringPeriod,
	}
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Backend: %s, Redis: %s, Port: %s}",
		c.Env, c.BackendURL, c.RedisAddr, c.APIPort)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

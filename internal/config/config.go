package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rushairer/bulkcopy"
	"github.com/rushairer/bulkcopy/drivers/clickhouse"
)

// ErrConfigNotFound is returned when the config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// DefaultFileName 默认配置文件名
const DefaultFileName = "bulkcopy.yaml"

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type MetricsConfig struct {
	Port      int    `yaml:"port"` // 0 表示不启动
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console 或 json
}

// Config bulkcopy 命令行的完整配置
type Config struct {
	ClickHouse clickhouse.Options `yaml:"clickhouse"`
	Load       bulkcopy.Config    `yaml:"load"`
	Redis      RedisConfig        `yaml:"redis"`
	Metrics    MetricsConfig      `yaml:"metrics"`
	Log        LogConfig          `yaml:"log"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		ClickHouse: clickhouse.Options{
			Endpoint:    clickhouse.DefaultEndpoint,
			Compression: clickhouse.CompressionNone,
		},
		Load: bulkcopy.DefaultConfig(),
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "bulkcopy:spool",
		},
		Metrics: MetricsConfig{Namespace: "bulkcopy"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load 读取 YAML 文件，${VAR} 按环境变量展开；未出现的字段保留默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve 加载 .env 与配置文件，再叠加 CLICKHOUSE_* 环境变量
// 文件不存在时使用默认配置；explicit 为 true 时文件必须存在
func Resolve(path string, explicit bool) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultFileName
	}
	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) || explicit {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = Default()
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		"CLICKHOUSE_ENDPOINT": &c.ClickHouse.Endpoint,
		"CLICKHOUSE_DATABASE": &c.ClickHouse.Database,
		"CLICKHOUSE_USER":     &c.ClickHouse.User,
		"CLICKHOUSE_PASSWORD": &c.ClickHouse.Password,
		"REDIS_ADDR":          &c.Redis.Addr,
		"REDIS_PASSWORD":      &c.Redis.Password,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
}

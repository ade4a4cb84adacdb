// Package aegconf 负责集中式配置加载
package aegconf

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 QUERYAEGIS_STORAGE_DATA_DIR
const EnvPrefix = "QUERYAEGIS"

type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir" validate:"required"`
	ImportDir string `mapstructure:"import_dir" validate:"omitempty,nefield=DataDir"`
}

type QueryConfig struct {
	MaxResults   int           `mapstructure:"max_results" validate:"gte=1"`
	CacheEntries int           `mapstructure:"cache_entries" validate:"gte=0"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gte=0"` // 每秒查询数，0 表示不限制
	RateBurst    int           `mapstructure:"rate_burst" validate:"gte=1"`
	// 单个数据集的查询配额，0 表示不限制
	DatasetRateLimit float64 `mapstructure:"dataset_rate_limit" validate:"gte=0"`
	DatasetRateBurst int     `mapstructure:"dataset_rate_burst" validate:"gte=1"`
}

type WorkerConfig struct {
	PoolSize int `mapstructure:"pool_size" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Config 是进程的完整配置
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Query   QueryConfig   `mapstructure:"query"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Log     LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.import_dir", "")
	v.SetDefault("query.max_results", 5000)
	v.SetDefault("query.cache_entries", 256)
	v.SetDefault("query.cache_ttl", "10m")
	v.SetDefault("query.rate_limit", 0)
	v.SetDefault("query.rate_burst", 10)
	v.SetDefault("query.dataset_rate_limit", 0)
	v.SetDefault("query.dataset_rate_burst", 5)
	v.SetDefault("worker.pool_size", runtime.NumCPU())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load 读取配置：默认值 < 配置文件 < 环境变量。
// path 为空时在 ./configs 与当前目录下查找 config.yaml，找不到文件不算错误；
// 显式指定的文件不存在或无法解析则返回错误。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验配置取值范围
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}

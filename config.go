package bulkcopy

import (
	"fmt"
	"strings"
)

const (
	// DefaultBatchSize 默认每批行数
	DefaultBatchSize = 50000

	// DefaultMaxDegreeOfParallelism 默认同时在途的批次数
	DefaultMaxDegreeOfParallelism = 4
)

// Config 加载配置，在加载开始前确定，加载期间不可变
type Config struct {
	DestinationTable       string `yaml:"destination_table" json:"destination_table"`
	BatchSize              int    `yaml:"batch_size" json:"batch_size"`
	MaxDegreeOfParallelism int    `yaml:"max_degree_of_parallelism" json:"max_degree_of_parallelism"`
	BufferCapacity         int    `yaml:"buffer_capacity" json:"buffer_capacity"` // 每批编码缓冲区初始容量，0 使用默认值
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		BatchSize:              DefaultBatchSize,
		MaxDegreeOfParallelism: DefaultMaxDegreeOfParallelism,
		BufferCapacity:         DefaultBufferCapacity,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if strings.TrimSpace(c.DestinationTable) == "" {
		return fmt.Errorf("%w: destination table is not set", ErrConfiguration)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be >= 1, got %d", ErrConfiguration, c.BatchSize)
	}
	if c.MaxDegreeOfParallelism < 1 {
		return fmt.Errorf("%w: max degree of parallelism must be >= 1, got %d", ErrConfiguration, c.MaxDegreeOfParallelism)
	}
	if c.BufferCapacity < 0 {
		return fmt.Errorf("%w: buffer capacity must be >= 0, got %d", ErrConfiguration, c.BufferCapacity)
	}
	return nil
}

// Package config 加载训练/推理的实验配置（YAML）。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 是一次训练实验的完整配置。
type Config struct {
	// Name 实验/模型名称（注册中心 key、服务路由都用它）
	Name string `yaml:"name"`

	// ModelDir 检查点与导出制品的根目录
	ModelDir string `yaml:"model_dir"`

	// VocabPath 类别词表 CSV 路径
	VocabPath string `yaml:"vocab_path"`

	// TrainDataPath 训练数据 glob（支持逗号分隔多个 pattern）
	TrainDataPath string `yaml:"train_data_path"`

	// EvalDataPath 评估数据 glob
	EvalDataPath string `yaml:"eval_data_path"`

	// TrainSteps 总训练步数
	TrainSteps int `yaml:"train_steps"`

	// EvalSteps 每次评估最多消费的批数
	EvalSteps int `yaml:"eval_steps"`

	// CheckpointSteps 检查点间隔；0 表示 max(1000, TrainSteps/10)
	CheckpointSteps int `yaml:"checkpoint_steps"`

	// BatchSize 批大小
	BatchSize int `yaml:"batch_size"`

	// ShuffleWindow 训练乱序窗口
	ShuffleWindow int `yaml:"shuffle_window"`

	// Seed 随机种子（乱序与权重初始化共用）
	Seed int64 `yaml:"seed"`

	// WeightedLoss 是否启用类别权重
	WeightedLoss bool `yaml:"weighted_loss"`

	// Scale 类别权重的幂指数
	Scale float64 `yaml:"scale"`

	// LearningRate Adam 学习率
	LearningRate float64 `yaml:"learning_rate"`

	// L2 权重正则系数（仅训练期生效，推理不可见）
	L2 float64 `yaml:"l2"`

	// LogEvery 每多少步打一条训练日志
	LogEvery int `yaml:"log_every"`

	// Filter 样本过滤 CEL 表达式（空串不过滤）
	Filter string `yaml:"filter"`

	// StrictParse true 时解析失败立即终止（开发期推荐）；
	// false 时跳过坏样本并计数（生产流式推荐）
	StrictParse bool `yaml:"strict_parse"`

	// Registry 模型注册中心配置（可选）
	Registry *Registry `yaml:"registry"`
}

// Registry 是模型注册中心的存储配置。
type Registry struct {
	// Backend 存储后端："memory" 或 "redis"
	Backend string `yaml:"backend"`

	// Addr Redis 地址（backend=redis 时必填）
	Addr string `yaml:"addr"`

	// DB Redis db 编号
	DB int `yaml:"db"`
}

// Default 返回带默认值的配置。
func Default() *Config {
	return &Config{
		Name:          "vtag",
		ModelDir:      "model",
		TrainSteps:    10000,
		EvalSteps:     100,
		BatchSize:     1024,
		ShuffleWindow: 1000,
		Seed:          777,
		Scale:         1.0,
		LearningRate:  0.001,
		L2:            1e-8,
		LogEvery:      100,
		StrictParse:   true,
	}
}

// Load 从 YAML 文件加载配置，未出现的字段保持默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置。
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("config: model_dir is required")
	}
	if c.TrainDataPath == "" {
		return fmt.Errorf("config: train_data_path is required")
	}
	if c.TrainSteps <= 0 {
		return fmt.Errorf("config: train_steps must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	if c.WeightedLoss && c.VocabPath == "" {
		return fmt.Errorf("config: weighted_loss requires vocab_path")
	}
	if c.Registry != nil {
		switch c.Registry.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("config: unknown registry backend %q", c.Registry.Backend)
		}
	}
	return nil
}

// CheckpointCadence 返回生效的检查点间隔。
func (c *Config) CheckpointCadence() int {
	if c.CheckpointSteps > 0 {
		return c.CheckpointSteps
	}
	cadence := c.TrainSteps / 10
	if cadence < 1000 {
		cadence = 1000
	}
	return cadence
}

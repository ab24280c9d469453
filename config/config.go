// Package config 提供 answerflow 的统一配置加载：
// 默认值 → YAML 文件 → 环境变量，三层覆盖。
//
// 使用方法:
//
//	cfg, err := config.Load("answerflow.yaml")
//	runner := answer.NewRunner(cfg.Answer(), gateway, searcher)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/answerflow/answer"
	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/retrieval"
	"github.com/BaSui01/answerflow/types"
)

// Duration 是支持 "30s" / "1h" 字符串形式的 time.Duration 包装。
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("invalid duration %q", value.Value)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换为 time.Duration。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config answerflow 完整配置结构。
type Config struct {
	// LLM 模型档位配置
	LLM LLMConfig `yaml:"llm"`
	// Pipeline 编排管线配置
	Pipeline PipelineConfig `yaml:"pipeline"`
	// Search 检索服务配置
	Search SearchConfig `yaml:"search"`
	// Cache 查询改写缓存配置
	Cache CacheConfig `yaml:"cache"`
	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// LLMConfig 模型档位配置。
type LLMConfig struct {
	// OpenAI 兼容端点地址（留空使用官方地址）
	BaseURL string `yaml:"base_url"`
	// API Key
	APIKey string `yaml:"api_key"`
	// 主模型名称（最终生成与问题分解）
	PrimaryModel string `yaml:"primary_model"`
	// 快模型名称（文档校验与查询改写）
	FastModel string `yaml:"fast_model"`
	// 单次调用超时
	CallTimeout Duration `yaml:"call_timeout"`
	// 快模型限速（每秒调用数，0 不限速）
	FastCallsPerSecond float64 `yaml:"fast_calls_per_second"`
	// 快模型限速突发额度
	FastBurst int `yaml:"fast_burst"`
	// 生成温度
	Temperature float32 `yaml:"temperature"`
}

// PipelineConfig 编排管线配置。
type PipelineConfig struct {
	// 最大子问题数
	MaxSubQuestions int `yaml:"max_sub_questions"`
	// 单个 prompt 最大文档数
	MaxSectionsPerPrompt int `yaml:"max_sections_per_prompt"`
	// 文档上下文 token 预算（0 关闭）
	ContextTokenBudget int `yaml:"context_token_budget"`
	// 是否启用质量门控的二次分解
	EnableDeepen bool `yaml:"enable_deepen"`
	// 是否启用实体/关系抽取分支
	EnableExtraction bool `yaml:"enable_extraction"`
	// 是否流式输出最终答案
	StreamFinal bool `yaml:"stream_final"`
	// 每次运行的最大并发任务数
	MaxConcurrency int64 `yaml:"max_concurrency"`

	// 查询改写变体数
	RewriteCount int `yaml:"rewrite_count"`
	// 改写列表是否包含原查询
	IncludeOriginal bool `yaml:"include_original"`
	// 每个变体保留的文档数上限
	DocsPerVariant int `yaml:"docs_per_variant"`
	// 单次检索超时
	SearchTimeout Duration `yaml:"search_timeout"`
	// 校验输出不可解析时的默认判定（"yes" 收录 / "no" 排除）
	VerifyParseDefault string `yaml:"verify_parse_default"`
	// 是否启用重排
	EnableRerank bool `yaml:"enable_rerank"`
	// 文档 ID 冲突时的保留策略（keep_first / keep_highest_score）
	TieBreak string `yaml:"tie_break"`
}

// SearchConfig 检索服务配置。
type SearchConfig struct {
	// 检索服务 HTTP 端点（CLI 必填，库用法可直接注入 Searcher）
	Endpoint string `yaml:"endpoint"`
	// 检索服务 API Key（可选）
	APIKey string `yaml:"api_key"`
}

// CacheConfig 改写缓存配置。
type CacheConfig struct {
	// Redis 地址（留空禁用缓存）
	RedisAddr string `yaml:"redis_addr"`
	// 缓存 TTL
	TTL Duration `yaml:"ttl"`
}

// LogConfig 日志配置。
type LogConfig struct {
	// 级别: debug / info / warn / error
	Level string `yaml:"level"`
	// 格式: json / console
	Format string `yaml:"format"`
}

// Defaults 返回默认配置。
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			CallTimeout:        Duration(30 * time.Second),
			FastCallsPerSecond: 16,
			FastBurst:          32,
		},
		Pipeline: PipelineConfig{
			MaxSubQuestions:      3,
			MaxSectionsPerPrompt: 10,
			ContextTokenBudget:   6000,
			StreamFinal:          true,
			MaxConcurrency:       16,
			RewriteCount:         3,
			IncludeOriginal:      true,
			DocsPerVariant:       4,
			SearchTimeout:        Duration(15 * time.Second),
			VerifyParseDefault:   string(types.VerdictNo),
			TieBreak:             string(types.TieBreakKeepFirst),
		},
		Cache: CacheConfig{
			TTL: Duration(30 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load 加载配置：默认值 → YAML 文件（path 为空则跳过）→ 环境变量。
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖（前缀 ANSWERFLOW_）。
func (c *Config) applyEnv() {
	if v := os.Getenv("ANSWERFLOW_PRIMARY_MODEL"); v != "" {
		c.LLM.PrimaryModel = v
	}
	if v := os.Getenv("ANSWERFLOW_FAST_MODEL"); v != "" {
		c.LLM.FastModel = v
	}
	if v := os.Getenv("ANSWERFLOW_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("ANSWERFLOW_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANSWERFLOW_SEARCH_ENDPOINT"); v != "" {
		c.Search.Endpoint = v
	}
	if v := os.Getenv("ANSWERFLOW_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("ANSWERFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ANSWERFLOW_MAX_SUB_QUESTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.MaxSubQuestions = n
		}
	}
	if v := os.Getenv("ANSWERFLOW_ENABLE_DEEPEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Pipeline.EnableDeepen = b
		}
	}
}

// Validate 校验配置合法性。
func (c *Config) Validate() error {
	if c.Pipeline.MaxSubQuestions <= 0 {
		return types.NewError(types.ErrInvalidConfig, "max_sub_questions must be positive")
	}
	if c.Pipeline.DocsPerVariant <= 0 {
		return types.NewError(types.ErrInvalidConfig, "docs_per_variant must be positive")
	}
	switch types.Verdict(c.Pipeline.VerifyParseDefault) {
	case types.VerdictYes, types.VerdictNo:
	default:
		return types.NewError(types.ErrInvalidConfig, "verify_parse_default must be yes or no")
	}
	switch types.TieBreak(c.Pipeline.TieBreak) {
	case types.TieBreakKeepFirst, types.TieBreakKeepHighestScore:
	default:
		return types.NewError(types.ErrInvalidConfig, "tie_break must be keep_first or keep_highest_score")
	}
	return nil
}

// Gateway 转换为 llm.GatewayConfig。
func (c *Config) Gateway() llm.GatewayConfig {
	return llm.GatewayConfig{
		PrimaryModel:       c.LLM.PrimaryModel,
		FastModel:          c.LLM.FastModel,
		CallTimeout:        c.LLM.CallTimeout.Std(),
		FastCallsPerSecond: c.LLM.FastCallsPerSecond,
		FastBurst:          c.LLM.FastBurst,
		Temperature:        c.LLM.Temperature,
	}
}

// Answer 转换为 answer.Config。
func (c *Config) Answer() answer.Config {
	return answer.Config{
		MaxSubQuestions:      c.Pipeline.MaxSubQuestions,
		MaxSectionsPerPrompt: c.Pipeline.MaxSectionsPerPrompt,
		ContextTokenBudget:   c.Pipeline.ContextTokenBudget,
		EnableDeepen:         c.Pipeline.EnableDeepen,
		EnableExtraction:     c.Pipeline.EnableExtraction,
		StreamFinal:          c.Pipeline.StreamFinal,
		GenerateHandle:       llm.HandlePrimary,
		MaxConcurrency:       c.Pipeline.MaxConcurrency,
		Retrieval: retrieval.Config{
			RewriteCount:       c.Pipeline.RewriteCount,
			IncludeOriginal:    c.Pipeline.IncludeOriginal,
			DocsPerVariant:     c.Pipeline.DocsPerVariant,
			SearchTimeout:      c.Pipeline.SearchTimeout.Std(),
			VerifyParseDefault: types.Verdict(c.Pipeline.VerifyParseDefault),
			EnableRerank:       c.Pipeline.EnableRerank,
			TieBreak:           types.TieBreak(c.Pipeline.TieBreak),
			MaxConcurrency:     int(c.Pipeline.MaxConcurrency),
			RewriteCacheTTL:    c.Cache.TTL.Std(),
		},
	}
}

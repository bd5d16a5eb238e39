package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath 默认配置文件路径
const DefaultPath = "configs/guide-api.yaml"

// 问候语匹配策略
const (
	GreetingMatchExact     = "exact"     // 完全匹配短语表
	GreetingMatchSubstring = "substring" // 包含短语且长度低于上限
)

// 直连模型提供方
const (
	DirectModelBedrock = "bedrock"
	DirectModelOpenAI  = "openai"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	CORS    CORSConfig    `yaml:"cors"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Chat    ChatConfig    `yaml:"chat"`
	Redis   RedisConfig   `yaml:"redis"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	WSIdleTimeout   time.Duration `yaml:"wsIdleTimeout"` // WebSocket 空闲超时，0 表示不清理
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigin string `yaml:"allowOrigin"`
}

// BedrockConfig Bedrock 配置
type BedrockConfig struct {
	Region          string `yaml:"region"`
	AccountID       string `yaml:"accountId"`
	KnowledgeBaseID string `yaml:"knowledgeBaseId"`
	ModelID         string `yaml:"modelId"`
	ModelARN        string `yaml:"modelArn"` // 显式覆盖
	MaxTokens       int    `yaml:"maxTokens"`
}

// OpenAIConfig OpenAI 兼容接口配置（也可指向通义千问兼容模式）
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
}

// ChatConfig 对话编排配置
type ChatConfig struct {
	DirectModel       string        `yaml:"directModel"`     // bedrock, openai
	DefaultLanguage   string        `yaml:"defaultLanguage"` // en, es
	GreetingMatch     string        `yaml:"greetingMatch"`   // exact, substring
	GreetingMaxLength int           `yaml:"greetingMaxLength"`
	WelcomeGreeting   bool          `yaml:"welcomeGreeting"` // 问候直接返回欢迎词，不调用模型
	RefusalPhrases    []string      `yaml:"refusalPhrases"`  // 追加的拒答短语
	CallTimeout       time.Duration `yaml:"callTimeout"`
	StreamDelay       time.Duration `yaml:"streamDelay"`
	StrictUnavailable bool          `yaml:"strictUnavailable"`
}

// RedisConfig Redis 配置（为空时不记录审计流）
type RedisConfig struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"maxLen"`
}

// RetrievalConfigured 知识库检索是否可用
func (b BedrockConfig) RetrievalConfigured() bool {
	return b.KnowledgeBaseID != "" && b.ModelID != ""
}

// ModelIdentifier 直连模型标识（ARN 覆盖优先）
func (b BedrockConfig) ModelIdentifier() string {
	if b.ModelARN != "" {
		return b.ModelARN
	}
	return b.ModelID
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Name:            "guide-api",
			WSIdleTimeout:   2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:    LogConfig{Level: "info"},
		CORS:   CORSConfig{AllowOrigin: "http://localhost:3000"},
		Bedrock: BedrockConfig{
			Region:    "us-east-1",
			MaxTokens: 300,
		},
		Chat: ChatConfig{
			DirectModel:       DirectModelBedrock,
			DefaultLanguage:   "en",
			GreetingMatch:     GreetingMatchExact,
			GreetingMaxLength: 20,
			CallTimeout:       30 * time.Second,
			StreamDelay:       20 * time.Millisecond,
		},
		Redis: RedisConfig{Stream: "chat:outcomes", MaxLen: 10000},
	}
}

// LoadConfig 加载配置文件，并叠加 .env 与环境变量
//
// path 为默认路径且文件不存在时只使用默认值和环境变量。
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// .env 不存在不是错误
	_ = godotenv.Load()

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖配置
func (c *Config) applyEnvOverrides() {
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.CORS.AllowOrigin, "CORS_ORIGIN")
	setString(&c.Bedrock.Region, "AWS_REGION")
	setString(&c.Bedrock.AccountID, "AWS_ACCOUNT_ID")
	setString(&c.Bedrock.KnowledgeBaseID, "BEDROCK_KB_ID")
	setString(&c.Bedrock.ModelID, "BEDROCK_MODEL_ID")
	setString(&c.Bedrock.ModelARN, "BEDROCK_MODEL_ARN")
	setString(&c.Chat.DirectModel, "DIRECT_MODEL_PROVIDER")
	setString(&c.Chat.DefaultLanguage, "DEFAULT_LANGUAGE")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.Redis.URL, "REDIS_URL")

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("端口无效: %d", c.Server.Port)
	}

	switch c.Chat.DefaultLanguage {
	case "en", "es":
	default:
		return fmt.Errorf("不支持的默认语言: %q", c.Chat.DefaultLanguage)
	}

	switch c.Chat.GreetingMatch {
	case GreetingMatchExact, GreetingMatchSubstring:
	default:
		return fmt.Errorf("未知的问候匹配策略: %q", c.Chat.GreetingMatch)
	}

	switch c.Chat.DirectModel {
	case DirectModelBedrock:
	case DirectModelOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("directModel=openai 需要配置 openai.apiKey")
		}
	default:
		return fmt.Errorf("未知的直连模型提供方: %q", c.Chat.DirectModel)
	}

	if c.Chat.CallTimeout < 0 || c.Chat.StreamDelay < 0 ||
		c.Server.WSIdleTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.New("超时与延迟不能为负数")
	}
	if c.Chat.GreetingMaxLength <= 0 {
		return fmt.Errorf("greetingMaxLength 必须为正数: %d", c.Chat.GreetingMaxLength)
	}
	if c.Bedrock.MaxTokens <= 0 {
		return fmt.Errorf("bedrock.maxTokens 必须为正数: %d", c.Bedrock.MaxTokens)
	}
	return nil
}

package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Doubao    DoubaoConfig    `mapstructure:"doubao"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Qwen      QwenConfig      `mapstructure:"qwen"`
	Agent     AgentConfig     `mapstructure:"agent"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Client    ClientConfig    `mapstructure:"client"`
	Tools     ToolsConfig     `mapstructure:"tools"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	StreamTimeout     time.Duration `mapstructure:"stream_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type ModelConfig struct {
	Provider string `mapstructure:"provider"` // doubao | openai | qwen
}

type DoubaoConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type AgentConfig struct {
	SystemPrompt       string `mapstructure:"system_prompt"`
	MaxHistoryMessages int    `mapstructure:"max_history_messages"`
	ThinkingStatus     string `mapstructure:"thinking_status"`
	// MaxSteps 限制一次回答中模型与工具的往返步数
	MaxSteps           int    `mapstructure:"max_steps"`
}

// ToolsConfig 聊天模型可调用的行情工具，数据来自 MarketBaseURL 指向的服务
type ToolsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MarketBaseURL string        `mapstructure:"market_base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type StorageConfig struct {
	Type           string        `mapstructure:"type"` // memory | disk | sqlite
	DataDir        string        `mapstructure:"data_dir"`
	CacheSize      int           `mapstructure:"cache_size"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
}

// ClientConfig 聊天客户端（cmd/chat）使用的配置
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	UserID         string        `mapstructure:"user_id"`
	Markdown       bool          `mapstructure:"markdown"`
}

// DefaultUserID 未配置 user_id 时使用的自选股用户
const DefaultUserID = "default"

// User 返回自选股接口使用的用户 ID
func (c ClientConfig) User() string {
	if c.UserID == "" {
		return DefaultUserID
	}
	return c.UserID
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.stream_timeout", 25*time.Minute)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("model.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("agent.max_history_messages", 10)
	v.SetDefault("agent.thinking_status", "Thinking...")
	v.SetDefault("agent.max_steps", 12)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 1000)
	v.SetDefault("client.base_url", "http://localhost:8001/api/v1")
	v.SetDefault("client.request_timeout", 30*time.Second)
	v.SetDefault("client.idle_timeout", 60*time.Second)
	v.SetDefault("client.history_limit", 10)
	v.SetDefault("client.user_id", DefaultUserID)
	v.SetDefault("client.markdown", true)
	v.SetDefault("tools.enabled", false)
	v.SetDefault("tools.timeout", 15*time.Second)
}

// Load 读取配置文件；configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHAT")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	// 配置文件优先，如果配置文件中没有设置，则使用环境变量
	if c.Doubao.APIKey == "" {
		if apiKey := os.Getenv("DOUBAO_API_KEY"); apiKey != "" {
			c.Doubao.APIKey = apiKey
		}
		if apiKey := os.Getenv("ARK_API_KEY"); apiKey != "" {
			c.Doubao.APIKey = apiKey
		}
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Qwen.APIKey == "" {
		c.Qwen.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}

	cfg = c
	return c, nil
}

func Get() *Config {
	return cfg
}

// APIKey 返回当前 provider 的密钥
func (c *Config) APIKey() string {
	switch c.Model.Provider {
	case "doubao":
		return c.Doubao.APIKey
	case "qwen":
		return c.Qwen.APIKey
	default:
		return c.OpenAI.APIKey
	}
}

// SetAPIKey 替换当前 provider 的密钥
func (c *Config) SetAPIKey(key string) {
	switch c.Model.Provider {
	case "doubao":
		c.Doubao.APIKey = key
	case "qwen":
		c.Qwen.APIKey = key
	default:
		c.OpenAI.APIKey = key
	}
}

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/go-playground/validator/v10"
)

const (
	defaultRegion  = "us-east-1"
	defaultModelID = "anthropic.claude-v2:1"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server        ServerConfig
	KnowledgeBase KnowledgeBaseConfig
	UI            UIConfig
	Limits        LimitsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	kb := loadKnowledgeBaseConfig()
	if err := kb.Validate(); err != nil {
		return nil, err
	}

	limits, err := loadLimitsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, KnowledgeBase: kb, UI: loadUIConfig(), Limits: limits}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	SessionCookie string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	cookie := getEnvOrDefault("SESSION_COOKIE", "kbchat_session")

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, SessionCookie: cookie}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, SessionCookie: cookie}, nil
}

// KnowledgeBaseConfig 描述 Bedrock 知识库与生成模型的固定配置。
type KnowledgeBaseConfig struct {
	Region          string `validate:"required"`
	ModelID         string `validate:"required"`
	KnowledgeBaseID string `validate:"required,alphanum"`
}

// ModelARN derives the foundation model ARN from region and model id.
func (c KnowledgeBaseConfig) ModelARN() string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", c.Region, c.ModelID)
}

// Validate 校验必填项。
func (c KnowledgeBaseConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid knowledge base configuration (BEDROCK_KB_ID / BEDROCK_MODEL_ID / AWS_REGION): %w", err)
	}
	return nil
}

// NewRuntimeClient 使用默认凭证链创建 Bedrock Agent Runtime 客户端。
func (c KnowledgeBaseConfig) NewRuntimeClient(ctx context.Context) (*bedrockagentruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}
	return bedrockagentruntime.NewFromConfig(awsCfg), nil
}

func loadKnowledgeBaseConfig() KnowledgeBaseConfig {
	region := getEnvOrDefault("BEDROCK_REGION", "")
	if region == "" {
		region = getEnvOrDefault("AWS_REGION", defaultRegion)
	}

	return KnowledgeBaseConfig{
		Region:          region,
		ModelID:         getEnvOrDefault("BEDROCK_MODEL_ID", defaultModelID),
		KnowledgeBaseID: strings.TrimSpace(os.Getenv("BEDROCK_KB_ID")),
	}
}

// UIConfig 描述聊天页面的文案。
type UIConfig struct {
	Title       string
	Heading     string
	Placeholder string
}

func loadUIConfig() UIConfig {
	return UIConfig{
		Title:       getEnvOrDefault("APP_TITLE", "RAG - Amazon Bedrock"),
		Heading:     getEnvOrDefault("APP_HEADING", "Your trusted virtual assistant"),
		Placeholder: getEnvOrDefault("APP_PLACEHOLDER", "Ask me anything ...."),
	}
}

// LimitsConfig 描述提问限流配置，AskRate 为 0 表示不限流。
type LimitsConfig struct {
	AskRate  float64
	AskBurst int
}

func loadLimitsConfig() (LimitsConfig, error) {
	limits := LimitsConfig{AskBurst: 1}

	rate, err := parseOptionalFloatEnv("ASK_RATE_LIMIT")
	if err != nil {
		return LimitsConfig{}, err
	}
	if rate != nil {
		if *rate < 0 {
			return LimitsConfig{}, fmt.Errorf("invalid ASK_RATE_LIMIT value %v: must not be negative", *rate)
		}
		limits.AskRate = *rate
	}

	burst, err := parseOptionalIntEnv("ASK_RATE_BURST")
	if err != nil {
		return LimitsConfig{}, err
	}
	if burst != nil && *burst > 1 {
		limits.AskBurst = *burst
	}

	return limits, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

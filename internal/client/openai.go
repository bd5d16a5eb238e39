package client

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatCompletionAPI go-openai 中用到的操作
type ChatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIModel OpenAI 兼容接口的直连模型（通义千问兼容模式同样适用）
type OpenAIModel struct {
	api       ChatCompletionAPI
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAIModel 创建 OpenAI 兼容客户端，baseURL 为空时使用官方地址
func NewOpenAIModel(apiKey, baseURL string, maxTokens int, logger *zap.Logger) *OpenAIModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIModelWithAPI(openai.NewClientWithConfig(cfg), maxTokens, logger)
}

// NewOpenAIModelWithAPI 使用已有的 API 实现
func NewOpenAIModelWithAPI(api ChatCompletionAPI, maxTokens int, logger *zap.Logger) *OpenAIModel {
	return &OpenAIModel{
		api:       api,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// InvokeModel 单轮对话
func (m *OpenAIModel) InvokeModel(ctx context.Context, modelID, prompt string) (string, error) {
	resp, err := m.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     modelID,
		MaxTokens: m.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", ClassifyError("openai.CreateChatCompletion", err)
	}

	if len(resp.Choices) == 0 {
		m.logger.Warn("模型未返回任何候选", zap.String("model", modelID))
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

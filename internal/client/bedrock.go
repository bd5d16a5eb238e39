package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

const anthropicVersion = "bedrock-2023-05-31"

// AgentRuntimeAPI bedrock-agent-runtime 中用到的操作
type AgentRuntimeAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// RuntimeAPI bedrock-runtime 中用到的操作
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient Bedrock 客户端，同时提供检索生成和直连模型
type BedrockClient struct {
	agent     AgentRuntimeAPI
	runtime   RuntimeAPI
	maxTokens int
	logger    *zap.Logger
}

// NewBedrockClient 创建 Bedrock 客户端
func NewBedrockClient(agent AgentRuntimeAPI, runtime RuntimeAPI, maxTokens int, logger *zap.Logger) *BedrockClient {
	return &BedrockClient{
		agent:     agent,
		runtime:   runtime,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// NewBedrockClientFromConfig 用 AWS 配置创建客户端
func NewBedrockClientFromConfig(awsCfg aws.Config, maxTokens int, logger *zap.Logger) *BedrockClient {
	return NewBedrockClient(
		bedrockagentruntime.NewFromConfig(awsCfg),
		bedrockruntime.NewFromConfig(awsCfg),
		maxTokens,
		logger,
	)
}

// RetrieveAndGenerate 调用知识库检索生成
func (c *BedrockClient) RetrieveAndGenerate(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &agenttypes.RetrieveAndGenerateInput{
			Text: aws.String(req.Prompt),
		},
		RetrieveAndGenerateConfiguration: &agenttypes.RetrieveAndGenerateConfiguration{
			Type: agenttypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &agenttypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(req.KnowledgeBaseID),
				ModelArn:        aws.String(req.ModelARN),
			},
		},
	}
	// 只在有会话时传 sessionId
	if req.SessionID != "" {
		input.SessionId = aws.String(req.SessionID)
	}

	c.logger.Debug("发送 RetrieveAndGenerate",
		zap.String("kbId", req.KnowledgeBaseID),
		zap.String("modelArn", req.ModelARN),
		zap.Bool("hasSession", req.SessionID != ""))

	out, err := c.agent.RetrieveAndGenerate(ctx, input)
	if err != nil {
		return nil, ClassifyError("bedrock.RetrieveAndGenerate", err)
	}

	resp := &RetrieveResponse{SessionID: aws.ToString(out.SessionId)}
	if out.Output != nil {
		resp.Text = aws.ToString(out.Output.Text)
	}

	c.logger.Debug("RetrieveAndGenerate 返回",
		zap.Bool("hasOutput", resp.Text != ""),
		zap.String("sessionId", resp.SessionID))
	return resp, nil
}

// anthropicRequest Anthropic messages 请求体
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicResponse Anthropic messages 响应体
type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

// InvokeModel 直连模型单轮生成
func (c *BedrockClient) InvokeModel(ctx context.Context, modelID, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.maxTokens,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicContent{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", ClassifyError("bedrock.InvokeModel", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}

	var text string
	if len(resp.Content) > 0 {
		text = strings.TrimSpace(resp.Content[0].Text)
	}
	c.logger.Debug("InvokeModel 返回",
		zap.String("modelId", modelID),
		zap.String("stopReason", resp.StopReason),
		zap.Int("length", len(text)))
	return text, nil
}

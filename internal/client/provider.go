package client

import "context"

// ModelInvoker 直连模型：单轮生成，无检索、无会话
type ModelInvoker interface {
	InvokeModel(ctx context.Context, modelID, prompt string) (string, error)
}

// RetrieveRequest 知识库检索生成请求
type RetrieveRequest struct {
	Prompt          string
	KnowledgeBaseID string
	ModelARN        string
	SessionID       string // 为空时由提供方新建会话
}

// RetrieveResponse 知识库检索生成结果
type RetrieveResponse struct {
	Text      string
	SessionID string
}

// KnowledgeBaseGenerator 检索增强生成
type KnowledgeBaseGenerator interface {
	RetrieveAndGenerate(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error)
}

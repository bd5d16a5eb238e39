package model

import "strings"

// Language 回复语言
type Language string

const (
	LanguageEN Language = "en"
	LanguageES Language = "es"
)

// ParseLanguage 解析语言，未知值返回 fallback
func ParseLanguage(raw string, fallback Language) Language {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case LanguageES:
		return LanguageES
	case LanguageEN:
		return LanguageEN
	default:
		return fallback
	}
}

// Classification 消息分类
type Classification string

const (
	ClassGreeting    Classification = "greeting"
	ClassSubstantive Classification = "substantive"
)

// GenerationMode 生成模式，决定提示词模板与调用方式
type GenerationMode string

const (
	ModeGreeting        GenerationMode = "greeting"
	ModeDefaultKB       GenerationMode = "default_kb"
	ModeEscalatedKB     GenerationMode = "escalated_kb"
	ModeGeneralFallback GenerationMode = "general_fallback"
)

// ChatRequest 聊天请求
type ChatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	Language       Language `json:"language,omitempty"`
}

// Normalize 去除首尾空白并补全默认语言
func (r ChatRequest) Normalize(defaultLang Language) ChatRequest {
	return ChatRequest{
		Message:        strings.TrimSpace(r.Message),
		ConversationID: strings.TrimSpace(r.ConversationID),
		Language:       ParseLanguage(string(r.Language), defaultLang),
	}
}

// ChatResult 聊天结果
type ChatResult struct {
	ConversationID string `json:"conversationId"`
	Reply          string `json:"reply"`
}

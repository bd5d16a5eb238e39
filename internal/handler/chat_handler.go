package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/model"
	"github.com/supportbot/gaming-guide/internal/service"
)

// 对外错误文案，不透出提供方错误细节
const (
	msgInvalidJSON      = "Invalid JSON body."
	msgMessageRequired  = "`message` is required."
	msgUseChatPost      = "Use POST /api/chat with JSON body."
	msgUnavailable      = "service unavailable"
	msgStreamingFailed  = "Streaming failed"
	msgUnknownFrameType = "unknown frame type"
)

// ChatHandler HTTP 聊天接口
type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// bindChatRequest 解析并校验请求体，失败时已写出 400
func (h *ChatHandler) bindChatRequest(c *gin.Context) (model.ChatRequest, bool) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidJSON})
		return req, false
	}
	req = req.Normalize(h.chatService.DefaultLanguage())
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMessageRequired})
		return req, false
	}
	return req, true
}

// Chat 同步对话：POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	req, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	result, err := h.chatService.HandleChat(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("对话处理失败", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgUnavailable})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ChatStream 流式对话（SSE）：POST /api/chat/stream
//
// 回复完整生成后按词推送，事件顺序为 meta、delta...、done。
func (h *ChatHandler) ChatStream(c *gin.Context) {
	req, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	var writeErr error
	err := h.chatService.StreamChat(c.Request.Context(), req, func(ev model.StreamEvent) error {
		c.SSEvent(ev.Type, ev.Payload())
		c.Writer.Flush()
		if err := c.Request.Context().Err(); err != nil {
			writeErr = err
			return err
		}
		return nil
	})
	if err == nil {
		return
	}
	if writeErr != nil || c.Request.Context().Err() != nil {
		h.logger.Info("客户端已断开，停止推送", zap.Error(err))
		return
	}

	h.logger.Warn("流式对话失败", zap.Error(err))
	ev := model.StreamEvent{Type: model.EventError, Error: msgStreamingFailed}
	c.SSEvent(ev.Type, ev.Payload())
	c.Writer.Flush()
}

// ChatMethodNotAllowed GET /api/chat 提示使用 POST
func (h *ChatHandler) ChatMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": msgUseChatPost})
}

// Health 健康检查：GET /health
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/middleware"
	"github.com/supportbot/gaming-guide/internal/model"
	"github.com/supportbot/gaming-guide/internal/service"
)

// inboundQueueSize 回复生成期间可排队的客户端帧数
const inboundQueueSize = 8

// WebSocketHandler WebSocket 聊天处理器
type WebSocketHandler struct {
	chatService *service.ChatService
	registry    *ConnRegistry
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(chatService *service.ChatService, registry *ConnRegistry, allowOrigin string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		registry:    registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: middleware.OriginAllowed(allowOrigin),
		},
		logger: logger,
	}
}

// HandleWebSocket WebSocket 连接入口：GET /ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// 升级为 WebSocket 连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	wsConn := model.NewWSConn(uuid.NewString(), c.ClientIP(), conn)
	h.registry.Register(wsConn)
	defer h.registry.Remove(wsConn.ID)

	// 断开或收到关闭帧时取消正在生成的回复
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	frames := make(chan model.WSInbound, inboundQueueSize)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.readPump(ctx, cancel, wsConn, frames)
	}()
	defer func() {
		conn.Close()
		<-pumpDone
	}()

	// 同一连接上的消息按顺序处理
	for {
		var in model.WSInbound
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket 连接断开", zap.String("connId", wsConn.ID))
			return
		case in = <-frames:
		}

		if err := h.handleFrame(ctx, wsConn, in); err != nil {
			h.logger.Info("WebSocket 写入失败，断开连接", zap.String("connId", wsConn.ID), zap.Error(err))
			return
		}
	}
}

// readPump 持续读取客户端帧，读取失败时取消连接上下文
func (h *WebSocketHandler) readPump(ctx context.Context, cancel context.CancelFunc, wsConn *model.WSConn, frames chan<- model.WSInbound) {
	defer cancel()
	for {
		var in model.WSInbound
		if err := wsConn.Conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket 读取错误", zap.String("connId", wsConn.ID), zap.Error(err))
			}
			return
		}
		wsConn.Touch()

		select {
		case frames <- in:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame 处理一帧，返回的错误表示连接已不可写
func (h *WebSocketHandler) handleFrame(ctx context.Context, conn *model.WSConn, in model.WSInbound) error {
	switch strings.ToUpper(in.Type) {
	case model.FramePing:
		return conn.WriteFrame(model.WSOutbound{Type: model.FramePong})

	case model.FrameChat:
		req := model.ChatRequest{
			Message:        in.Message,
			ConversationID: in.ConversationID,
			Language:       in.Language,
		}.Normalize(h.chatService.DefaultLanguage())
		if req.Message == "" {
			return conn.WriteFrame(model.WSOutbound{Type: model.EventError, Error: msgMessageRequired})
		}
		return h.streamReply(ctx, conn, req)

	default:
		h.logger.Warn("未知消息类型",
			zap.String("connId", conn.ID),
			zap.String("type", in.Type))
		return conn.WriteFrame(model.WSOutbound{Type: model.EventError, Error: msgUnknownFrameType})
	}
}

func (h *WebSocketHandler) streamReply(ctx context.Context, conn *model.WSConn, req model.ChatRequest) error {
	conn.SetBusy(true)
	defer conn.SetBusy(false)

	var writeErr error
	err := h.chatService.StreamChat(ctx, req, func(ev model.StreamEvent) error {
		writeErr = conn.WriteFrame(ev.OutboundFrame())
		return writeErr
	})
	switch {
	case err == nil:
		return nil
	case writeErr != nil:
		return writeErr
	case errors.Is(err, context.Canceled):
		return err
	}

	h.logger.Warn("WebSocket 流式对话失败", zap.String("connId", conn.ID), zap.Error(err))
	return conn.WriteFrame(model.WSOutbound{Type: model.EventError, Error: msgStreamingFailed})
}

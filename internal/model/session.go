package model

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn 一个 WebSocket 聊天连接
type WSConn struct {
	ID           string
	ClientIP     string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	busy         bool       // 正在推送回复
	mu           sync.Mutex // 串行化写入
}

// NewWSConn 创建连接包装
func NewWSConn(id, clientIP string, conn *websocket.Conn) *WSConn {
	now := time.Now()
	return &WSConn{
		ID:           id,
		ClientIP:     clientIP,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
	}
}

// Touch 更新最近活跃时间
func (c *WSConn) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastActivity = time.Now()
}

// IdleSince 最近活跃时间
func (c *WSConn) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastActivity
}

// SetBusy 标记是否正在生成或推送回复，忙碌的连接不会被当作空闲
func (c *WSConn) SetBusy(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = busy
	c.LastActivity = time.Now()
}

// IsIdle 不忙碌且超过 maxIdle 没有收发
func (c *WSConn) IsIdle(now time.Time, maxIdle time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy && now.Sub(c.LastActivity) > maxIdle
}

// WriteFrame 向 WebSocket 写入帧（线程安全），写入也算活跃
func (c *WSConn) WriteFrame(frame WSOutbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastActivity = time.Now()
	return c.Conn.WriteJSON(frame)
}

// Close 发送关闭帧并断开连接
func (c *WSConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.Conn.Close()
}

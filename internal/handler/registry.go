package handler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/model"
)

// ConnRegistry WebSocket 连接注册表
type ConnRegistry struct {
	conns  map[string]*model.WSConn // connId -> conn
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewConnRegistry 创建连接注册表
func NewConnRegistry(logger *zap.Logger) *ConnRegistry {
	return &ConnRegistry{
		conns:  make(map[string]*model.WSConn),
		logger: logger,
	}
}

// Register 注册连接
func (r *ConnRegistry) Register(conn *model.WSConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn

	r.logger.Info("WebSocket 连接注册成功",
		zap.String("connId", conn.ID),
		zap.String("clientIp", conn.ClientIP),
		zap.Int("online", len(r.conns)))
}

// Remove 移除连接
func (r *ConnRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		delete(r.conns, id)
		r.logger.Info("WebSocket 连接已移除", zap.String("connId", id))
	}
}

// Count 在线连接数
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseIdle 关闭空闲超过 maxIdle 的连接，返回关闭数量
func (r *ConnRegistry) CloseIdle(maxIdle time.Duration) int {
	now := time.Now()
	var idle []*model.WSConn

	r.mu.Lock()
	for id, conn := range r.conns {
		if conn.IsIdle(now, maxIdle) {
			idle = append(idle, conn)
			delete(r.conns, id)
		}
	}
	r.mu.Unlock()

	for _, conn := range idle {
		r.logger.Info("清理空闲连接",
			zap.String("connId", conn.ID),
			zap.Duration("idle", now.Sub(conn.IdleSince())))
		_ = conn.Close("idle timeout")
	}
	return len(idle)
}

// RunIdleSweeper 定期清理空闲连接，直到 ctx 结束
func (r *ConnRegistry) RunIdleSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CloseIdle(maxIdle)
		}
	}
}

// CloseAll 关闭所有连接（停机时调用）
func (r *ConnRegistry) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]*model.WSConn, 0, len(r.conns))
	for id, conn := range r.conns {
		conns = append(conns, conn)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(reason)
	}
	if len(conns) > 0 {
		r.logger.Info("已关闭所有 WebSocket 连接", zap.Int("count", len(conns)))
	}
}

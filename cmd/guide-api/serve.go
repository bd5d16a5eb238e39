package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/supportbot/gaming-guide/internal/handler"
)

const defaultShutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, SSE and WebSocket chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, zapLogger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("guide-api 服务启动中...")

	a, err := buildApp(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	registry := handler.NewConnRegistry(zapLogger)
	router := handler.NewRouter(cfg.Server.Name, cfg.CORS.AllowOrigin,
		handler.NewChatHandler(a.chat, zapLogger),
		handler.NewWebSocketHandler(a.chat, registry, cfg.CORS.AllowOrigin, zapLogger),
		registry, zapLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("guide-api 服务启动成功", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	if idle := cfg.Server.WSIdleTimeout; idle > 0 {
		g.Go(func() error {
			registry.RunIdleSweeper(gctx, idle/2, idle)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("正在停止服务...")

		timeout := cfg.Server.ShutdownTimeout
		if timeout == 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// 被劫持的 WebSocket 连接不受 Shutdown 管理，需要单独关闭
		registry.CloseAll("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("停止服务失败: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zapLogger.Error("服务异常退出", zap.Error(err))
		return err
	}
	zapLogger.Info("服务已停止")
	return nil
}

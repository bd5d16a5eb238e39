package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/config"
	"github.com/supportbot/gaming-guide/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 命令入口：serve 启动服务，ask 单次提问
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "guide-api",
		Short: "Adaptive Gaming Guide chat API",
		Long: `guide-api fronts a Bedrock knowledge base with a small chat contract:
{message, conversationId, language} -> {conversationId, reply}.

Greetings go to a direct model, questions go through retrieve-and-generate
with refusal escalation, and replies can be streamed as SSE or WebSocket frames.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "配置文件路径")

	root.AddCommand(newServeCmd(&configPath), newAskCmd(&configPath))
	return root
}

// loadRuntime 加载配置并初始化日志
func loadRuntime(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, zapLogger, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supportbot/gaming-guide/internal/model"
)

func newAskCmd(configPath *string) *cobra.Command {
	var (
		language       string
		conversationID string
		stream         bool
	)

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message through the chat pipeline and print the reply",
		Long: `Runs a single message through the same pipeline the server uses and prints
the JSON result. With --stream the SSE-style events are printed one per line.

Example:
  guide-api ask "How do I set up an adaptive controller?" --lang en`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			a, err := buildApp(cmd.Context(), cfg, zapLogger)
			if err != nil {
				return err
			}
			defer a.Close()

			req := model.ChatRequest{
				Message:        strings.Join(args, " "),
				ConversationID: conversationID,
				Language:       model.Language(language),
			}
			out := json.NewEncoder(cmd.OutOrStdout())

			if stream {
				return a.chat.StreamChat(cmd.Context(), req, func(ev model.StreamEvent) error {
					return out.Encode(map[string]interface{}{"event": ev.Type, "data": ev.Payload()})
				})
			}

			result, err := a.chat.HandleChat(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("对话处理失败: %w", err)
			}
			out.SetIndent("", "  ")
			return out.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&language, "lang", "l", "", "回复语言 en|es，默认取配置")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "沿用的会话 ID")
	cmd.Flags().BoolVar(&stream, "stream", false, "按事件逐行输出")
	return cmd
}

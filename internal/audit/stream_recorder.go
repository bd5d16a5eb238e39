package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/service"
)

// StreamRecorder 把每次对话的处理结果写入 Redis Stream，只写不读
type StreamRecorder struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamRecorder 创建审计流记录器，maxLen 为 0 时不裁剪
func NewStreamRecorder(rdb redis.Cmdable, stream string, maxLen int64, logger *zap.Logger) *StreamRecorder {
	return &StreamRecorder{
		rdb:    rdb,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Record 写入一条处理记录
func (r *StreamRecorder) Record(ctx context.Context, trace service.Trace) error {
	modes := make([]string, len(trace.Modes))
	for i, m := range trace.Modes {
		modes[i] = string(m)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"conversationId": trace.ConversationID,
			"language":       string(trace.Language),
			"classification": string(trace.Classification),
			"modes":          strings.Join(modes, ","),
			"providerCalls":  strconv.Itoa(trace.ProviderCalls),
			"sessionReset":   strconv.FormatBool(trace.SessionReset),
			"fallback":       trace.Fallback,
			"durationMs":     strconv.FormatInt(trace.Duration.Milliseconds(), 10),
			"recordedAt":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("写入审计流失败: %w", err)
	}
	r.logger.Debug("审计记录已写入", zap.String("stream", r.stream), zap.String("id", id))
	return nil
}

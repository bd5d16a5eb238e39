package service

import (
	"context"
	"time"
	"unicode"

	"github.com/supportbot/gaming-guide/internal/model"
)

// ReplyEvents 把完整回复切分为事件序列：meta、每个词一个 delta、done
//
// 回复在切分前已完整生成，这里只是按词模拟流式输出。每个 delta 为一个词加上
// 它后面的原始空白，最后一个词追加一个空格；拼接全部 delta 并去掉末尾这个空格即得到原文。
func ReplyEvents(result *model.ChatResult) []model.StreamEvent {
	chunks := deltaChunks(result.Reply)
	events := make([]model.StreamEvent, 0, len(chunks)+2)
	events = append(events, model.StreamEvent{Type: model.EventMeta, ConversationID: result.ConversationID})
	for _, c := range chunks {
		events = append(events, model.StreamEvent{Type: model.EventDelta, Text: c})
	}
	return append(events, model.StreamEvent{Type: model.EventDone})
}

// deltaChunks 按空白切词，保留词后的空白，开头的空白并入第一个词
func deltaChunks(reply string) []string {
	var starts []int
	prevSpace := true
	for i, r := range reply {
		space := unicode.IsSpace(r)
		if !space && prevSpace {
			starts = append(starts, i)
		}
		prevSpace = space
	}
	if len(starts) == 0 {
		return nil
	}
	starts[0] = 0

	chunks := make([]string, len(starts))
	for k, start := range starts {
		end := len(reply)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		chunks[k] = reply[start:end]
	}
	chunks[len(chunks)-1] += " "
	return chunks
}

// StreamChat 生成完整回复后按顺序推送事件
//
// emit 返回错误或 ctx 结束时停止推送；delta 之间按配置的间隔等待。
func (s *ChatService) StreamChat(ctx context.Context, req model.ChatRequest, emit func(model.StreamEvent) error) error {
	result, err := s.HandleChat(ctx, req)
	if err != nil {
		return err
	}

	for _, ev := range ReplyEvents(result) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(ev); err != nil {
			return err
		}
		if ev.Type == model.EventDelta && s.streamDelay > 0 {
			if err := sleepContext(ctx, s.streamDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

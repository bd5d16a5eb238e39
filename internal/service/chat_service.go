package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/client"
	"github.com/supportbot/gaming-guide/internal/config"
	"github.com/supportbot/gaming-guide/internal/model"
)

var (
	// ErrProviderUnavailable 严格模式下所有提供方调用均不可达
	ErrProviderUnavailable = errors.New("生成服务不可用")
	// ErrEmptyMessage 消息为空
	ErrEmptyMessage = errors.New("消息不能为空")
)

// 降级类型，写入 Trace.Fallback
const (
	FallbackNone           = ""
	FallbackWelcome        = "welcome"
	FallbackCannedGreeting = "canned_greeting"
	FallbackEcho           = "echo"
	FallbackGeneric        = "generic"
	FallbackUnavailable    = "unavailable"
)

const recordTimeout = 2 * time.Second

// Trace 单次请求的处理轨迹
type Trace struct {
	ConversationID string
	Language       model.Language
	Classification model.Classification
	Modes          []model.GenerationMode
	ProviderCalls  int
	SessionReset   bool
	Fallback       string
	Duration       time.Duration
}

// OutcomeRecorder 记录处理结果（可选）
type OutcomeRecorder interface {
	Record(ctx context.Context, trace Trace) error
}

// Options 生成后端参数，由启动时解析
type Options struct {
	KnowledgeBaseID string
	ModelARN        string // 检索生成使用的模型引用
	DirectModelID   string // 直连模型标识
}

// ChatService 对话编排：分类、构造提示词、调用模型、拒答升级
type ChatService struct {
	classifier  *GreetingClassifier
	prompts     *PromptBuilder
	refusals    *RefusalDetector
	kb          client.KnowledgeBaseGenerator
	direct      client.ModelInvoker
	opts        Options
	defaultLang model.Language
	welcome     bool
	callTimeout time.Duration
	streamDelay time.Duration
	strict      bool
	recorder    OutcomeRecorder
	logger      *zap.Logger
	newID       func() string
}

// NewChatService 创建对话编排服务，kb、direct、recorder 可为 nil
func NewChatService(
	chat config.ChatConfig,
	opts Options,
	kb client.KnowledgeBaseGenerator,
	direct client.ModelInvoker,
	recorder OutcomeRecorder,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		classifier:  NewGreetingClassifier(chat),
		prompts:     NewPromptBuilder(),
		refusals:    NewRefusalDetector(chat.RefusalPhrases),
		kb:          kb,
		direct:      direct,
		opts:        opts,
		defaultLang: model.ParseLanguage(chat.DefaultLanguage, model.LanguageEN),
		welcome:     chat.WelcomeGreeting,
		callTimeout: chat.CallTimeout,
		streamDelay: chat.StreamDelay,
		strict:      chat.StrictUnavailable,
		recorder:    recorder,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// DefaultLanguage 未指定语言时使用的语言
func (s *ChatService) DefaultLanguage() model.Language {
	return s.defaultLang
}

// chatRun 单次请求的可变状态，不跨请求共享
type chatRun struct {
	req         model.ChatRequest
	trace       Trace
	session     string // 最近一次提供方返回的会话
	rejected    bool   // 调用方会话被提供方判定无效
	unavailable int    // 不可达错误次数
}

// HandleChat 处理一条消息并返回完整回复
//
// 除严格模式下的 ErrProviderUnavailable、空消息和调用方取消外不返回错误，
// 所有失败路径都以固定回复结束。
func (s *ChatService) HandleChat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error) {
	start := time.Now()
	req = req.Normalize(s.defaultLang)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	run := &chatRun{
		req: req,
		trace: Trace{
			Language:       req.Language,
			Classification: s.classifier.Classify(req.Message),
		},
	}

	var (
		result *model.ChatResult
		err    error
	)
	if run.trace.Classification == model.ClassGreeting {
		result, err = s.handleGreeting(ctx, run)
	} else {
		result, err = s.handleSubstantive(ctx, run)
	}

	run.trace.Duration = time.Since(start)
	if result != nil {
		run.trace.ConversationID = result.ConversationID
	}
	s.finish(ctx, run, err)
	return result, err
}

// handleGreeting 问候：直连模型一次，失败用固定问候语
func (s *ChatService) handleGreeting(ctx context.Context, run *chatRun) (*model.ChatResult, error) {
	lang := run.req.Language
	run.trace.Modes = append(run.trace.Modes, model.ModeGreeting)
	convID := run.req.ConversationID
	if convID == "" {
		convID = s.newID()
	}

	if s.welcome {
		run.trace.Fallback = FallbackWelcome
		return &model.ChatResult{ConversationID: convID, Reply: canned(lang).welcome}, nil
	}

	if !s.directConfigured() {
		run.trace.Fallback = FallbackCannedGreeting
		return &model.ChatResult{ConversationID: convID, Reply: canned(lang).greeting}, nil
	}

	text, err := s.invokeDirect(ctx, run, model.ModeGreeting)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("问候模型调用失败，使用固定问候语", zap.Error(err))
		run.trace.Fallback = FallbackCannedGreeting
		return &model.ChatResult{ConversationID: convID, Reply: canned(lang).greeting}, nil
	}

	reply, replaced := cleanReply(text, canned(lang).greeting)
	if replaced {
		run.trace.Fallback = FallbackCannedGreeting
	}
	return &model.ChatResult{ConversationID: convID, Reply: reply}, nil
}

// handleSubstantive 实际问题：知识库 → 升级知识库 → 通用直连模型
func (s *ChatService) handleSubstantive(ctx context.Context, run *chatRun) (*model.ChatResult, error) {
	if !s.retrievalConfigured() {
		run.trace.Fallback = FallbackEcho
		return s.result(run, echoReply(run.req.Language, run.req.Message)), nil
	}

	// 第一次：默认知识库提示词，携带调用方会话
	text, err := s.retrieve(ctx, run, model.ModeDefaultKB, run.req.ConversationID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("知识库调用失败，使用回显回复",
			zap.String("errorKind", client.KindOf(err).String()),
			zap.Error(err))
		return s.echo(run)
	}
	if !s.refusals.LooksLikeRefusal(text) {
		return s.answer(run, text), nil
	}

	// 第二次：丢弃会话，使用更强的防拒答提示词
	s.logger.Info("检测到拒答，升级提示词", zap.Int("attempt", 2))
	text, err = s.retrieve(ctx, run, model.ModeEscalatedKB, "")
	switch {
	case err == nil && !s.refusals.LooksLikeRefusal(text):
		return s.answer(run, text), nil
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		s.logger.Warn("升级知识库调用失败，改用通用回复",
			zap.String("errorKind", client.KindOf(err).String()),
			zap.Error(err))
	}

	// 第三次：放弃检索，结果直接采用，不再检测拒答
	s.logger.Info("仍为拒答，改用通用提示词", zap.Int("attempt", 3))
	if !s.directConfigured() {
		return s.echo(run)
	}
	text, err = s.invokeDirect(ctx, run, model.ModeGeneralFallback)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("通用模型调用失败，使用回显回复",
			zap.String("errorKind", client.KindOf(err).String()),
			zap.Error(err))
		return s.echo(run)
	}
	return s.answer(run, text), nil
}

// retrieve 调用知识库检索生成；调用方会话无效时去掉会话重试一次
func (s *ChatService) retrieve(ctx context.Context, run *chatRun, mode model.GenerationMode, sessionID string) (string, error) {
	run.trace.Modes = append(run.trace.Modes, mode)
	req := client.RetrieveRequest{
		Prompt:          s.prompts.BuildPrompt(run.req.Message, run.req.Language, mode),
		KnowledgeBaseID: s.opts.KnowledgeBaseID,
		ModelARN:        s.opts.ModelARN,
		SessionID:       sessionID,
	}
	s.logger.Debug("调用知识库",
		zap.String("mode", string(mode)),
		zap.Bool("withSession", sessionID != ""),
		zap.String("preview", preview(req.Prompt)))

	resp, err := s.callRetrieve(ctx, run, req)
	if err != nil && sessionID != "" && client.KindOf(err) == client.KindInvalidSession {
		s.logger.Info("会话无效，去掉会话重试", zap.String("conversationId", sessionID))
		run.rejected = true
		run.trace.SessionReset = true
		req.SessionID = ""
		resp, err = s.callRetrieve(ctx, run, req)
	}
	if err != nil {
		return "", err
	}
	if resp.SessionID != "" {
		run.session = resp.SessionID
	}
	return resp.Text, nil
}

func (s *ChatService) callRetrieve(ctx context.Context, run *chatRun, req client.RetrieveRequest) (*client.RetrieveResponse, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	run.trace.ProviderCalls++
	resp, err := s.kb.RetrieveAndGenerate(callCtx, req)
	if err != nil {
		s.countFailure(run, err)
		return nil, err
	}
	return resp, nil
}

// invokeDirect 直连模型调用
func (s *ChatService) invokeDirect(ctx context.Context, run *chatRun, mode model.GenerationMode) (string, error) {
	if mode != model.ModeGreeting {
		run.trace.Modes = append(run.trace.Modes, mode)
	}
	prompt := s.prompts.BuildPrompt(run.req.Message, run.req.Language, mode)
	s.logger.Debug("调用直连模型",
		zap.String("mode", string(mode)),
		zap.String("preview", preview(prompt)))

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	run.trace.ProviderCalls++
	text, err := s.direct.InvokeModel(callCtx, s.opts.DirectModelID, prompt)
	if err != nil {
		s.countFailure(run, err)
		return "", err
	}
	return text, nil
}

func (s *ChatService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *ChatService) countFailure(run *chatRun, err error) {
	if client.KindOf(err) == client.KindUnavailable {
		run.unavailable++
	}
}

// answer 采用模型回复，不可用时替换为通用回复
func (s *ChatService) answer(run *chatRun, text string) *model.ChatResult {
	reply, replaced := cleanReply(text, canned(run.req.Language).generic)
	if replaced {
		run.trace.Fallback = FallbackGeneric
	}
	return s.result(run, reply)
}

// echo 回显降级；严格模式下所有调用都不可达时返回 ErrProviderUnavailable
func (s *ChatService) echo(run *chatRun) (*model.ChatResult, error) {
	if s.strict && run.trace.ProviderCalls > 0 && run.unavailable == run.trace.ProviderCalls {
		run.trace.Fallback = FallbackUnavailable
		return nil, ErrProviderUnavailable
	}
	run.trace.Fallback = FallbackEcho
	return s.result(run, echoReply(run.req.Language, run.req.Message)), nil
}

// result 确定会话标识：最近的提供方会话，其次未被拒绝的调用方会话，否则新建
func (s *ChatService) result(run *chatRun, reply string) *model.ChatResult {
	convID := run.session
	if convID == "" && !run.rejected {
		convID = run.req.ConversationID
	}
	if convID == "" {
		convID = s.newID()
	}
	return &model.ChatResult{ConversationID: convID, Reply: reply}
}

func (s *ChatService) retrievalConfigured() bool {
	return s.kb != nil && s.opts.KnowledgeBaseID != "" && s.opts.ModelARN != ""
}

func (s *ChatService) directConfigured() bool {
	return s.direct != nil && s.opts.DirectModelID != ""
}

// finish 输出处理日志并写入结果记录
func (s *ChatService) finish(ctx context.Context, run *chatRun, err error) {
	modes := make([]string, len(run.trace.Modes))
	for i, m := range run.trace.Modes {
		modes[i] = string(m)
	}
	fields := []zap.Field{
		zap.String("conversationId", run.trace.ConversationID),
		zap.String("language", string(run.trace.Language)),
		zap.String("classification", string(run.trace.Classification)),
		zap.Strings("modes", modes),
		zap.Int("providerCalls", run.trace.ProviderCalls),
		zap.Bool("sessionReset", run.trace.SessionReset),
		zap.String("fallback", run.trace.Fallback),
		zap.Int("messageLength", len(run.req.Message)),
		zap.Duration("duration", run.trace.Duration),
	}

	if err != nil && !errors.Is(err, ErrProviderUnavailable) {
		s.logger.Info("请求已取消", append(fields, zap.Error(err))...)
		return
	}
	if err != nil {
		s.logger.Error("生成服务不可用", fields...)
	} else {
		s.logger.Info("消息处理完成", fields...)
	}

	if s.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if rerr := s.recorder.Record(rctx, run.trace); rerr != nil {
		s.logger.Warn("写入处理记录失败", zap.Error(rerr))
	}
}

// preview 截断提示词用于调试日志
func preview(s string) string {
	const limit = 240
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

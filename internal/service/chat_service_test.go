package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/supportbot/gaming-guide/internal/client"
	"github.com/supportbot/gaming-guide/internal/config"
	"github.com/supportbot/gaming-guide/internal/model"
)

type kbStep struct {
	text    string
	session string
	err     error
}

// scriptedKB 按顺序返回预设结果，并记录每次请求
type scriptedKB struct {
	mu    sync.Mutex
	steps []kbStep
	calls []client.RetrieveRequest
}

func (f *scriptedKB) RetrieveAndGenerate(ctx context.Context, req client.RetrieveRequest) (*client.RetrieveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	return &client.RetrieveResponse{Text: step.text, SessionID: step.session}, nil
}

type scriptedModel struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
	models  []string
}

func (f *scriptedModel) InvokeModel(ctx context.Context, modelID, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, modelID)
	return f.text, f.err
}

type memoryRecorder struct {
	traces []Trace
	err    error
}

func (r *memoryRecorder) Record(ctx context.Context, trace Trace) error {
	r.traces = append(r.traces, trace)
	return r.err
}

var configuredOpts = Options{
	KnowledgeBaseID: "KB123",
	ModelARN:        "arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-3-haiku",
	DirectModelID:   "anthropic.claude-3-haiku",
}

func testChatConfig() config.ChatConfig {
	cfg := config.Default().Chat
	cfg.StreamDelay = 0
	return cfg
}

func newTestService(t *testing.T, cfg config.ChatConfig, opts Options, kb client.KnowledgeBaseGenerator, direct client.ModelInvoker, rec OutcomeRecorder) *ChatService {
	t.Helper()
	return NewChatService(cfg, opts, kb, direct, rec, zaptest.NewLogger(t))
}

func invalidSession() error {
	return &client.ProviderError{Op: "RetrieveAndGenerate", Kind: client.KindInvalidSession, Err: errors.New("Session with Id stale is not valid")}
}

func unavailable() error {
	return &client.ProviderError{Op: "RetrieveAndGenerate", Kind: client.KindUnavailable, Err: errors.New("connection reset")}
}

const refusalEN = "I'm sorry, I am unable to assist with that request."

func TestHandleChat_GreetingWithoutBackend(t *testing.T) {
	s := newTestService(t, testChatConfig(), Options{}, nil, nil, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "hello", Language: model.LanguageEN})
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help?", res.Reply)
	_, perr := uuid.Parse(res.ConversationID)
	assert.NoError(t, perr)

	res, err = s.HandleChat(context.Background(), model.ChatRequest{Message: "Hola", ConversationID: "conv-1", Language: model.LanguageES})
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿en qué puedo ayudarte?", res.Reply)
	assert.Equal(t, "conv-1", res.ConversationID)
}

func TestHandleChat_GreetingUsesDirectModelOnce(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{{text: "should not be used"}}}
	direct := &scriptedModel{text: "Hello, I'm your Adaptive Gaming Guide. What console do you use?"}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, direct.text, res.Reply)
	assert.Empty(t, kb.calls)
	require.Len(t, direct.prompts, 1)
	assert.Contains(t, direct.prompts[0], "Ignore knowledge-base content")
	assert.Equal(t, configuredOpts.DirectModelID, direct.models[0])
}

func TestHandleChat_GreetingProviderErrorUsesCannedText(t *testing.T) {
	direct := &scriptedModel{err: unavailable()}
	s := newTestService(t, testChatConfig(), configuredOpts, &scriptedKB{}, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "buenas", Language: model.LanguageES})
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿en qué puedo ayudarte?", res.Reply)
	assert.Len(t, direct.prompts, 1)
}

func TestHandleChat_WelcomeGreeting(t *testing.T) {
	cfg := testChatConfig()
	cfg.WelcomeGreeting = true
	direct := &scriptedModel{text: "unused"}
	s := newTestService(t, cfg, configuredOpts, &scriptedKB{}, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Adaptive Gaming Guide")
	assert.Empty(t, direct.prompts)
}

func TestHandleChat_EchoWithoutRetrievalConfig(t *testing.T) {
	s := newTestService(t, testChatConfig(), Options{DirectModelID: "m"}, nil, &scriptedModel{}, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "  Which controller for one hand?  "})
	require.NoError(t, err)
	assert.Equal(t, "You said: Which controller for one hand?", res.Reply)
	assert.NotEmpty(t, res.ConversationID)

	res, err = s.HandleChat(context.Background(), model.ChatRequest{Message: "¿Qué mando?", ConversationID: "abc", Language: model.LanguageES})
	require.NoError(t, err)
	assert.Equal(t, "Dijiste: ¿Qué mando?", res.Reply)
	assert.Equal(t, "abc", res.ConversationID)
}

func TestHandleChat_FirstAnswerAccepted(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{{text: "Summary:\n- Use the Xbox Adaptive Controller.", session: "sess-1"}}}
	direct := &scriptedModel{}
	rec := &memoryRecorder{}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, rec)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{
		Message:        "How do I set up an adaptive controller?",
		ConversationID: "sess-0",
		Language:       model.LanguageEN,
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.ConversationID)
	assert.Equal(t, "Summary:\n- Use the Xbox Adaptive Controller.", res.Reply)

	require.Len(t, kb.calls, 1)
	assert.Empty(t, direct.prompts)
	assert.Equal(t, "sess-0", kb.calls[0].SessionID)
	assert.Equal(t, configuredOpts.KnowledgeBaseID, kb.calls[0].KnowledgeBaseID)
	assert.Equal(t, configuredOpts.ModelARN, kb.calls[0].ModelARN)
	assert.Contains(t, kb.calls[0].Prompt, "How do I set up an adaptive controller?")

	require.Len(t, rec.traces, 1)
	assert.Equal(t, 1, rec.traces[0].ProviderCalls)
	assert.Equal(t, []model.GenerationMode{model.ModeDefaultKB}, rec.traces[0].Modes)
	assert.Equal(t, "sess-1", rec.traces[0].ConversationID)
	assert.Equal(t, FallbackNone, rec.traces[0].Fallback)
}

func TestHandleChat_RefusalEscalatesToThreeCalls(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{
		{text: refusalEN, session: "sess-1"},
		{text: "Lo siento, no puedo ayudar con eso.", session: "sess-2"},
	}}
	direct := &scriptedModel{text: "Sorry, I cannot help with that."}
	rec := &memoryRecorder{}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, rec)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "How do I set up an adaptive controller?", ConversationID: "sess-0"})
	require.NoError(t, err)

	require.Len(t, kb.calls, 2)
	require.Len(t, direct.prompts, 1)
	assert.Equal(t, "sess-0", kb.calls[0].SessionID)
	assert.Empty(t, kb.calls[1].SessionID)
	assert.Contains(t, kb.calls[1].Prompt, escalateDirectiveEN)
	assert.NotContains(t, kb.calls[0].Prompt, escalateDirectiveEN)
	assert.Contains(t, direct.prompts[0], "Provide a helpful, concise response")

	// the last-resort reply is accepted as is
	assert.Equal(t, "Sorry, I cannot help with that.", res.Reply)
	assert.Equal(t, "sess-2", res.ConversationID)

	require.Len(t, rec.traces, 1)
	assert.Equal(t, 3, rec.traces[0].ProviderCalls)
	assert.Equal(t, []model.GenerationMode{model.ModeDefaultKB, model.ModeEscalatedKB, model.ModeGeneralFallback}, rec.traces[0].Modes)
}

func TestHandleChat_EscalationSucceedsOnSecondCall(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{
		{text: "I can't help with that.", session: "sess-1"},
		{text: "Resumen:\n- Prueba un mando adaptativo.", session: "sess-2"},
	}}
	direct := &scriptedModel{}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "¿Qué mando recomiendas?", Language: model.LanguageES})
	require.NoError(t, err)
	assert.Len(t, kb.calls, 2)
	assert.Empty(t, direct.prompts)
	assert.Equal(t, "sess-2", res.ConversationID)
	assert.Contains(t, kb.calls[1].Prompt, escalateDirectiveES)
}

func TestHandleChat_InvalidSessionRetriedOnce(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{
		{err: invalidSession()},
		{text: "Summary:\n- Fresh answer.", session: "sess-new"},
	}}
	rec := &memoryRecorder{}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, &scriptedModel{}, rec)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "How do I remap buttons?", ConversationID: "stale"})
	require.NoError(t, err)
	require.Len(t, kb.calls, 2)
	assert.Equal(t, "stale", kb.calls[0].SessionID)
	assert.Empty(t, kb.calls[1].SessionID)
	assert.Equal(t, kb.calls[0].Prompt, kb.calls[1].Prompt)
	assert.Equal(t, "sess-new", res.ConversationID)
	assert.True(t, rec.traces[0].SessionReset)
}

func TestHandleChat_InvalidSessionThenEscalation(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{
		{err: invalidSession()},
		{text: refusalEN},
		{text: "Summary:\n- Escalated answer."},
	}}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, &scriptedModel{}, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "How do I remap buttons?", ConversationID: "stale"})
	require.NoError(t, err)
	assert.Len(t, kb.calls, 3)
	assert.Equal(t, "Summary:\n- Escalated answer.", res.Reply)
	// the provider returned no session, the rejected one must not come back
	assert.NotEqual(t, "stale", res.ConversationID)
	assert.NotEmpty(t, res.ConversationID)
}

func TestHandleChat_InvalidSessionRetryFailsFallsBackToEcho(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{{err: invalidSession()}}}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, &scriptedModel{}, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "How do I remap buttons?", ConversationID: "stale"})
	require.NoError(t, err)
	assert.Len(t, kb.calls, 2)
	assert.Equal(t, "You said: How do I remap buttons?", res.Reply)
	assert.NotEqual(t, "stale", res.ConversationID)
}

func TestHandleChat_FirstAttemptErrorEchoes(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{{err: errors.New("access denied")}}}
	direct := &scriptedModel{}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Which games support eye tracking?", ConversationID: "conv-9"})
	require.NoError(t, err)
	assert.Len(t, kb.calls, 1)
	assert.Empty(t, direct.prompts)
	assert.Equal(t, "You said: Which games support eye tracking?", res.Reply)
	assert.Equal(t, "conv-9", res.ConversationID)
}

func TestHandleChat_SecondAttemptErrorGoesToFallback(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{
		{text: refusalEN, session: "sess-1"},
		{err: unavailable()},
	}}
	direct := &scriptedModel{text: "Summary:\n- General guidance."}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Which games support eye tracking?"})
	require.NoError(t, err)
	assert.Len(t, kb.calls, 2)
	assert.Len(t, direct.prompts, 1)
	assert.Equal(t, "Summary:\n- General guidance.", res.Reply)
	assert.Equal(t, "sess-1", res.ConversationID)
}

func TestHandleChat_FallbackErrorEchoes(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{{text: refusalEN}}}
	direct := &scriptedModel{err: errors.New("boom")}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, direct, nil)

	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Need help", Language: model.LanguageES})
	require.NoError(t, err)
	assert.Len(t, kb.calls, 2)
	assert.Len(t, direct.prompts, 1)
	assert.Equal(t, "Dijiste: Need help", res.Reply)
}

func TestHandleChat_StrictUnavailable(t *testing.T) {
	cfg := testChatConfig()
	cfg.StrictUnavailable = true

	kb := &scriptedKB{steps: []kbStep{{err: unavailable()}}}
	rec := &memoryRecorder{}
	s := newTestService(t, cfg, configuredOpts, kb, &scriptedModel{}, rec)
	_, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Which games support eye tracking?"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	require.Len(t, rec.traces, 1)
	assert.Equal(t, FallbackUnavailable, rec.traces[0].Fallback)

	// a non-availability failure still ends in the echo reply
	kb = &scriptedKB{steps: []kbStep{{err: errors.New("validation failed")}}}
	s = newTestService(t, cfg, configuredOpts, kb, &scriptedModel{}, nil)
	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Which games support eye tracking?"})
	require.NoError(t, err)
	assert.Equal(t, "You said: Which games support eye tracking?", res.Reply)

	// without strict mode the same outage is masked
	kb = &scriptedKB{steps: []kbStep{{err: unavailable()}}}
	s = newTestService(t, testChatConfig(), configuredOpts, kb, &scriptedModel{}, nil)
	res, err = s.HandleChat(context.Background(), model.ChatRequest{Message: "Which games support eye tracking?"})
	require.NoError(t, err)
	assert.Equal(t, "You said: Which games support eye tracking?", res.Reply)
}

func TestHandleChat_ScaffoldingReplaced(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang model.Language
		want string
	}{
		{"action", "Action: search_kb(query)", model.LanguageEN, "No answer."},
		{"thought", "thought: I should look this up", model.LanguageES, "No tengo respuesta."},
		{"empty", "   ", model.LanguageEN, "No answer."},
		{"response label", "Response: Summary:\n- Try a foot pedal.", model.LanguageEN, "Summary:\n- Try a foot pedal."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := &scriptedKB{steps: []kbStep{{text: tt.text, session: "s"}}}
			s := newTestService(t, testChatConfig(), configuredOpts, kb, &scriptedModel{}, nil)
			res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Which pedal works?", Language: tt.lang})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Reply)
		})
	}
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	s := newTestService(t, testChatConfig(), configuredOpts, &scriptedKB{}, &scriptedModel{}, nil)
	_, err := s.HandleChat(context.Background(), model.ChatRequest{Message: " \n\t "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestHandleChat_CancelledContext(t *testing.T) {
	kb := &scriptedKB{steps: []kbStep{{text: "unused"}}}
	rec := &memoryRecorder{}
	s := newTestService(t, testChatConfig(), configuredOpts, kb, &scriptedModel{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.HandleChat(ctx, model.ChatRequest{Message: "Which games support eye tracking?"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.traces)
}

func TestHandleChat_CallTimeoutApplied(t *testing.T) {
	cfg := testChatConfig()
	cfg.CallTimeout = 50 * time.Millisecond

	var deadline time.Time
	kb := kbFunc(func(ctx context.Context, req client.RetrieveRequest) (*client.RetrieveResponse, error) {
		deadline, _ = ctx.Deadline()
		return &client.RetrieveResponse{Text: "Summary:\n- ok", SessionID: "s"}, nil
	})
	s := newTestService(t, cfg, configuredOpts, kb, &scriptedModel{}, nil)

	before := time.Now()
	_, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "Which games support eye tracking?"})
	require.NoError(t, err)
	assert.False(t, deadline.IsZero())
	assert.WithinDuration(t, before.Add(50*time.Millisecond), deadline, time.Second)
}

func TestHandleChat_RecorderErrorIgnored(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("redis down")}
	s := newTestService(t, testChatConfig(), Options{}, nil, nil, rec)
	res, err := s.HandleChat(context.Background(), model.ChatRequest{Message: "hey"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reply)
	assert.Len(t, rec.traces, 1)
}

type kbFunc func(ctx context.Context, req client.RetrieveRequest) (*client.RetrieveResponse, error)

func (f kbFunc) RetrieveAndGenerate(ctx context.Context, req client.RetrieveRequest) (*client.RetrieveResponse, error) {
	return f(ctx, req)
}

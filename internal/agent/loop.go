package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/internal/conversations"
	"github.com/haasonsaas/steward/internal/observability"
	"github.com/haasonsaas/steward/internal/retry"
	"github.com/haasonsaas/steward/pkg/models"
)

const (
	// eventBufferSize is the turn event channel buffer.
	eventBufferSize = 64

	// maxResponseTextSize caps accumulated response text per turn (1MB).
	maxResponseTextSize = 1 << 20

	// maxToolCallsPerRound caps tool requests in a single reasoning round.
	maxToolCallsPerRound = 16
)

// LoopConfig configures turn execution.
type LoopConfig struct {
	// Model is passed through to the provider. Empty uses the provider default.
	Model string

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// MaxToolRounds limits tool execution rounds per turn.
	// Default: 8
	MaxToolRounds int

	// MaxTokens is the response token limit per inference call.
	// Default: 4096
	MaxTokens int

	// TurnTimeout bounds the wall clock time of one turn (0 = no limit).
	// Default: 2m
	TurnTimeout time.Duration

	// ContextWindow is how many stored messages feed each turn.
	// Default: 20
	ContextWindow int

	// Retry governs inference transport retries. Auth and validation
	// failures are never retried regardless of this config.
	Retry retry.Config

	// Logger receives turn diagnostics. Never logs message content or
	// credentials.
	Logger *slog.Logger

	// Metrics receives turn, inference, and tool measurements. Optional.
	Metrics *observability.Metrics

	// Tracer produces spans for turns, inference calls, and tool
	// execution. Optional.
	Tracer *observability.Tracer
}

// DefaultLoopConfig returns the default turn configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		SystemPrompt:  DefaultSystemPrompt,
		MaxToolRounds: 8,
		MaxTokens:     4096,
		TurnTimeout:   2 * time.Minute,
		ContextWindow: conversations.DefaultWindowSize,
		Retry:         retry.DefaultConfig(),
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	defaults := DefaultLoopConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaults.SystemPrompt
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaults.MaxToolRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.TurnTimeout < 0 {
		cfg.TurnTimeout = 0
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = defaults.ContextWindow
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = defaults.Retry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// Loop drives one conversational turn through its state machine:
//
//	received → reasoning → (tool_call → tool_result)* → responding → complete
//
// with error terminal from any state. Each reasoning round asks the provider
// for either a final answer or tool calls; requested tools execute
// sequentially and their results feed the next round. A hard round cap stops
// runaway turns.
type Loop struct {
	provider LLMProvider
	registry *Registry
	store    conversations.Store
	config   *LoopConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewLoop creates a turn loop. If config is nil, DefaultLoopConfig is used.
func NewLoop(provider LLMProvider, registry *Registry, store conversations.Store, config *LoopConfig) *Loop {
	config = sanitizeLoopConfig(config)
	if registry == nil {
		registry = NewRegistry()
	}
	return &Loop{
		provider: provider,
		registry: registry,
		store:    store,
		config:   config,
		logger:   config.Logger,
		metrics:  config.Metrics,
		tracer:   config.Tracer,
	}
}

// turnState tracks one turn in flight.
type turnState struct {
	state       State
	round       int
	started     time.Time
	span        trace.Span
	messages    []CompletionMessage
	response    strings.Builder
	invocations []models.ToolInvocation
}

// Run executes one turn and streams TurnEvents until the channel closes.
//
// The user message is persisted before the first inference call; the agent
// message is persisted on completion, or with partial content on failure.
// The identity is bound to the turn's context so every tool call runs with
// the caller's credentials and nothing else. Cancelling ctx stops the turn
// between rounds; an in-flight tool call runs to completion first.
func (l *Loop) Run(ctx context.Context, identity *auth.Identity, conv *models.Conversation, userText string) (<-chan TurnEvent, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if l.store == nil {
		return nil, errors.New("no conversation store configured")
	}
	if conv == nil {
		return nil, errors.New("conversation is nil")
	}
	if identity == nil {
		return nil, models.NewDomainError(models.KindAuthInvalid, "")
	}
	if strings.TrimSpace(userText) == "" {
		return nil, models.NewDomainError(models.KindValidationFailed, "Message text is required.")
	}

	runCtx := auth.WithIdentity(ctx, identity)
	var cancel context.CancelFunc
	if l.config.TurnTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, l.config.TurnTimeout)
	}

	events := make(chan TurnEvent, eventBufferSize)
	go func() {
		defer close(events)
		if cancel != nil {
			defer cancel()
		}
		l.run(runCtx, conv, userText, events)
	}()
	return events, nil
}

func (l *Loop) run(ctx context.Context, conv *models.Conversation, userText string, events chan<- TurnEvent) {
	st := &turnState{state: StateReceived, started: time.Now()}

	ctx, span := l.tracer.TraceTurn(ctx, conv.ID)
	st.span = span
	defer func() {
		status := "complete"
		if st.state == StateError {
			status = "error"
		}
		l.metrics.RecordTurn(status, time.Since(st.started).Seconds())
		span.End()
	}()

	history, err := l.store.RecentMessages(ctx, conv.ID, l.config.ContextWindow)
	if err != nil {
		l.fail(ctx, events, st, conv, storeError("load history", err))
		return
	}
	st.messages = promptMessages(conversations.Window(history, l.config.ContextWindow), userText)

	if _, err := l.store.AppendMessage(ctx, conv.ID, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        userText,
	}); err != nil {
		l.fail(ctx, events, st, conv, storeError("persist user message", err))
		return
	}

	l.emit(ctx, events, TurnEvent{Kind: EventMessageStart, ConversationID: conv.ID})

	for {
		select {
		case <-ctx.Done():
			l.fail(ctx, events, st, conv, ctx.Err())
			return
		default:
		}

		st.state = StateReasoning
		text, calls, err := l.reason(ctx, st, events)
		if err != nil {
			l.fail(ctx, events, st, conv, err)
			return
		}

		if len(calls) == 0 {
			l.complete(ctx, events, st, conv)
			return
		}

		if st.round >= l.config.MaxToolRounds {
			l.fail(ctx, events, st, conv, &TurnError{State: StateReasoning, Round: st.round, Cause: ErrMaxToolRounds})
			return
		}
		st.round++

		st.messages = append(st.messages, CompletionMessage{
			Role:      "assistant",
			Content:   text,
			ToolCalls: calls,
		})

		results := l.executeCalls(ctx, st, calls, events)
		st.messages = append(st.messages, CompletionMessage{
			Role:        "tool",
			ToolResults: results,
		})
	}
}

type roundOutput struct {
	text         string
	calls        []ToolCall
	inputTokens  int
	outputTokens int
}

// reason runs one inference round, streaming text deltas as events and
// collecting tool calls. Transport failures retry with backoff; once any
// delta reached the client the round is no longer retryable.
func (l *Loop) reason(ctx context.Context, st *turnState, events chan<- TurnEvent) (string, []ToolCall, error) {
	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    l.config.SystemPrompt,
		Messages:  st.messages,
		Tools:     l.registry.Tools(),
		MaxTokens: l.config.MaxTokens,
	}

	model := l.config.Model
	if model == "" {
		model = "default"
	}
	ctx, span := l.tracer.TraceProviderCall(ctx, l.provider.Name(), model)
	defer span.End()
	start := time.Now()

	out, res := retry.DoWithValue(ctx, l.config.Retry, func() (roundOutput, error) {
		return l.streamOnce(ctx, st, req, events)
	})
	if res.Err != nil {
		l.metrics.RecordProviderRequest(l.provider.Name(), model, "error",
			time.Since(start).Seconds(), out.inputTokens, out.outputTokens)
		observability.RecordError(span, res.Err)
		if res.Attempts > 1 {
			l.logger.Warn("inference failed after retries",
				"provider", l.provider.Name(),
				"attempts", res.Attempts,
				"round", st.round,
			)
		}
		return "", nil, &TurnError{State: StateReasoning, Round: st.round, Cause: res.Err}
	}
	l.metrics.RecordProviderRequest(l.provider.Name(), model, "success",
		time.Since(start).Seconds(), out.inputTokens, out.outputTokens)
	return out.text, out.calls, nil
}

func (l *Loop) streamOnce(ctx context.Context, st *turnState, req *CompletionRequest, events chan<- TurnEvent) (roundOutput, error) {
	var out roundOutput

	chunks, err := l.provider.Complete(ctx, req)
	if err != nil {
		if !completionRetryable(err) {
			return out, retry.Permanent(err)
		}
		return out, err
	}

	var text strings.Builder
	emitted := false
	for chunk := range chunks {
		if chunk.Error != nil {
			// A stream that failed after deltas reached the client cannot be
			// replayed without duplicating output.
			if emitted || !completionRetryable(chunk.Error) {
				return out, retry.Permanent(chunk.Error)
			}
			return out, chunk.Error
		}
		if chunk.Text != "" {
			if st.response.Len()+len(chunk.Text) > maxResponseTextSize {
				return out, retry.Permanent(fmt.Errorf("response exceeds %d bytes", maxResponseTextSize))
			}
			emitted = true
			text.WriteString(chunk.Text)
			st.response.WriteString(chunk.Text)
			if !l.emit(ctx, events, TurnEvent{Kind: EventContentDelta, Content: chunk.Text}) {
				return out, retry.Permanent(ctx.Err())
			}
		}
		if chunk.ToolCall != nil {
			if len(out.calls) >= maxToolCallsPerRound {
				return out, retry.Permanent(fmt.Errorf("tool calls exceed %d per round", maxToolCallsPerRound))
			}
			out.calls = append(out.calls, *chunk.ToolCall)
		}
		if chunk.Done {
			out.inputTokens = chunk.InputTokens
			out.outputTokens = chunk.OutputTokens
		}
	}

	out.text = text.String()
	return out, nil
}

// executeCalls runs the round's tool calls one at a time, in the order the
// model issued them. A failing tool never aborts the turn: the failure is
// rendered as a structured error result the model reads on the next round.
func (l *Loop) executeCalls(ctx context.Context, st *turnState, calls []ToolCall, events chan<- TurnEvent) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		st.state = StateToolCall
		args := call.Input
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		l.emit(ctx, events, TurnEvent{Kind: EventToolCallStart, ToolName: call.Name})
		l.emit(ctx, events, TurnEvent{Kind: EventToolCallArgs, ToolName: call.Name, Arguments: args})

		toolCtx, toolSpan := l.tracer.TraceToolExecution(ctx, call.Name)
		toolStart := time.Now()
		res, err := l.registry.Execute(toolCtx, call.Name, call.Input)
		if err != nil || res == nil {
			msg := "tool execution failed"
			if err != nil {
				msg = err.Error()
			}
			observability.RecordError(toolSpan, err)
			res = ErrorResult(models.KindInternalError, msg)
		}
		status := "success"
		if res.IsError {
			status = "error"
		}
		l.metrics.RecordToolExecution(call.Name, status, time.Since(toolStart).Seconds())
		toolSpan.End()

		st.state = StateToolResult
		raw := rawResult(res.Content)
		l.emit(ctx, events, TurnEvent{Kind: EventToolCallResult, ToolName: call.Name, Result: raw})

		st.invocations = append(st.invocations, models.ToolInvocation{
			ToolName:  call.Name,
			Arguments: args,
			Result:    raw,
			IsError:   res.IsError,
		})
		results = append(results, ToolResult{
			ToolCallID: call.ID,
			Content:    res.Content,
			IsError:    res.IsError,
		})

		l.logger.Debug("tool executed",
			"tool", call.Name,
			"is_error", res.IsError,
			"round", st.round,
		)
	}
	return results
}

func (l *Loop) complete(ctx context.Context, events chan<- TurnEvent, st *turnState, conv *models.Conversation) {
	st.state = StateResponding
	content := st.response.String()

	if _, err := l.store.AppendMessage(ctx, conv.ID, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAgent,
		Content:        content,
		ToolCalls:      st.invocations,
	}); err != nil {
		l.fail(ctx, events, st, conv, storeError("persist agent message", err))
		return
	}

	st.state = StateComplete
	l.emit(ctx, events, TurnEvent{Kind: EventMessageEnd, Content: content, ToolCalls: st.invocations})
}

// fail moves the turn to its error terminal state: partial output is
// persisted so the transcript matches what the user saw, and a final error
// event carries a user-safe message.
func (l *Loop) fail(ctx context.Context, events chan<- TurnEvent, st *turnState, conv *models.Conversation, cause error) {
	st.state = StateError
	kind, message := classifyTurnError(cause)

	if content := st.response.String(); content != "" || len(st.invocations) > 0 {
		persistCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			persistCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if _, err := l.store.AppendMessage(persistCtx, conv.ID, &models.Message{
			ConversationID: conv.ID,
			Role:           models.RoleAgent,
			Content:        content,
			ToolCalls:      st.invocations,
			Metadata:       map[string]any{"partial": true, "error": string(kind)},
		}); err != nil {
			l.logger.Error("persist partial agent message",
				"error", err,
				"conversation_id", conv.ID,
			)
		}
	}

	observability.RecordError(st.span, cause)
	l.logger.Error("turn failed",
		"error", cause,
		"conversation_id", conv.ID,
		"round", st.round,
		"kind", string(kind),
	)

	l.emit(ctx, events, TurnEvent{Kind: EventError, ErrorKind: kind, ErrorMessage: message})
}

// emit sends an event unless the turn context has ended. The error terminal
// event still lands in the channel buffer after cancellation when there is
// room, so draining consumers see how the turn ended.
func (l *Loop) emit(ctx context.Context, events chan<- TurnEvent, ev TurnEvent) bool {
	select {
	case events <- ev:
		return true
	default:
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// classifyTurnError maps a turn failure onto the error taxonomy with a
// message safe to show the user.
func classifyTurnError(err error) (models.ErrorKind, string) {
	if errors.Is(err, ErrMaxToolRounds) {
		return models.KindInternalError, "I couldn't complete that request within the allowed number of steps. Try breaking it into smaller pieces."
	}
	if dom, ok := models.AsDomainError(err); ok {
		msg := dom.Message
		if msg == "" {
			msg = models.UserMessage(dom.Kind)
		}
		return dom.Kind, msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.KindTimeout, models.UserMessage(models.KindTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return models.KindInternalError, "The request was canceled."
	}
	// Anything unclassified at this layer came from the inference transport.
	return models.KindModelUnavailable, models.UserMessage(models.KindModelUnavailable)
}

// storeError keeps conversation store failures out of the provider bucket.
func storeError(op string, err error) error {
	if _, ok := models.AsDomainError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return models.NewDomainError(models.KindInternalError, "").WithCause(fmt.Errorf("%s: %w", op, err))
}

// promptMessages shapes the context window plus the new user message into a
// provider transcript. Stored agent messages become assistant turns; rows
// with no text are dropped.
func promptMessages(window []conversations.Snippet, userText string) []CompletionMessage {
	msgs := make([]CompletionMessage, 0, len(window)+1)
	for _, s := range window {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		role := "user"
		switch s.Role {
		case models.RoleAgent:
			role = "assistant"
		case models.RoleSystem:
			role = "system"
		}
		msgs = append(msgs, CompletionMessage{Role: role, Content: s.Content})
	}
	return append(msgs, CompletionMessage{Role: "user", Content: userText})
}

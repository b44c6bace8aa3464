package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"folioagent/internal/adapters/ai"
	"folioagent/internal/audit"
	"folioagent/internal/metrics"
	"folioagent/internal/tools"
	"folioagent/internal/verifier"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

const (
	notConfiguredAnswer = "The portfolio assistant is not currently configured. " +
		"An administrator needs to set an AI provider API key before questions can be answered."
	llmFailureAnswer = "Sorry, I could not complete the portfolio analysis because the AI service " +
		"returned an error. Please try again in a moment."
	emptyAnswer     = "I gathered your portfolio data but could not produce a final answer. Please try asking again."
	llmFailureEvent = "The AI service is unavailable right now. Please try again."
	unknownToolErr  = "Unknown or disabled tool"

	failureConfidence = 0.1
	maxDetailLength   = 200
)

// Metric label values for turn mode
const (
	modeUnary  = "unary"
	modeStream = "stream"
)

// Orchestrator runs the bounded tool-calling loop for chat turns.
// It is safe for concurrent use; all per-turn state lives in a turn value.
type Orchestrator struct {
	provider ai.ChatProvider
	registry *tools.Registry
	cfg      Config
	sink     audit.Sink
	log      *logger.Logger
	now      func() time.Time
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithAuditSink sets where completed turns are recorded
func WithAuditSink(sink audit.Sink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator builds an orchestrator. provider may be nil, in which case every
// turn returns the not-configured answer.
func NewOrchestrator(provider ai.ChatProvider, registry *tools.Registry, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		registry: registry,
		cfg:      cfg.withDefaults(),
		sink:     audit.NoopSink{},
		log:      logger.Get(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "orchestrator")
	return o
}

// Configured reports whether an LLM provider with credentials is wired in
func (o *Orchestrator) Configured() bool {
	return o.provider != nil && o.provider.Configured()
}

// Chat runs one turn and returns the assembled response. The only error returned
// is the context's error when the caller goes away, or a validation error for an
// empty message. Provider failures become a low-confidence answer.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest, tc tools.ToolContext) (*ChatResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	t, resp, err := o.run(ctx, req, tc, modeUnary, func(Event) {})
	switch {
	case err == nil:
		return resp, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return o.failure(ctx, t, modeUnary), nil
	}
}

// ChatStream runs one turn, emitting progress events in order. A done or error event
// terminates the stream; cancellation of ctx ends it without a terminal event and
// returns the context's error.
func (o *Orchestrator) ChatStream(ctx context.Context, req ChatRequest, tc tools.ToolContext, emit Emitter) error {
	if err := validate(req); err != nil {
		return err
	}

	t, resp, err := o.run(ctx, req, tc, modeStream, emit)
	switch {
	case err == nil:
		emit(done(resp))
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		o.failure(ctx, t, modeStream)
		emit(errorEvent(llmFailureEvent))
		return nil
	}
}

func validate(req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.NewValidationError("message", "must not be empty", req.Message)
	}
	return nil
}

// run drives Planning, ToolExecuting and Answering, then verifies and assembles the
// response. A non-nil error means the turn failed in a provider call or was cancelled.
func (o *Orchestrator) run(ctx context.Context, req ChatRequest, tc tools.ToolContext, mode string, emit Emitter) (*turn, *ChatResponse, error) {
	t := newTurn(uuid.New().String(), tc.UserID, o.now())
	log := o.log.With("turn_id", t.id, "user_id", tc.UserID)
	ctx = errors.WithUserID(ctx, tc.UserID)

	if !o.Configured() {
		log.Warnw("agent not configured, skipping provider call")
		t.stopReason = StopNotConfigured
		resp := &ChatResponse{
			TurnID:     t.id,
			Answer:     notConfiguredAnswer,
			Data:       defaultData(),
			ToolTrace:  t.trace,
			Confidence: failureConfidence,
			Warnings:   []string{},
			LoopMeta:   t.meta(o.now()),
		}
		metrics.RecordTurn(mode, StopNotConfigured, o.now().Sub(t.started), failureConfidence)
		return t, resp, nil
	}

	if tc.BaseCurrency == "" {
		tc.BaseCurrency = o.cfg.BaseCurrency
	}
	if tc.AccountID == "" {
		tc.AccountID = req.AccountID
	}

	system, err := SystemPrompt(tc.BaseCurrency, o.cfg.Language, req, t.started)
	if err != nil {
		return t, nil, errors.Wrap(err, "build system prompt")
	}

	chatReq := ai.ChatRequest{
		Model:       o.cfg.Model,
		System:      system,
		Messages:    buildMessages(req.ConversationHistory, req.Message, o.cfg.HistoryTokenBudget),
		Tools:       o.toolDefinitions(),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}
	rounds := o.cfg.rounds(req.Mode)

	log.Infow("turn started", "mode", req.Mode, "max_rounds", rounds, "history", len(req.ConversationHistory))

	var answer *ai.ChatResponse
	for {
		t.iterations++
		emit(iterationStart(t.iterations))
		if t.toolRounds == 0 {
			emit(thinking("Planning which portfolio data to look at"))
		} else {
			emit(thinking("Reviewing tool results"))
		}

		resp, err := o.call(ctx, chatReq, t)
		if err != nil {
			return t, nil, err
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			answer = resp
			t.stopReason = string(resp.StopReason)
			break
		}
		if t.toolRounds >= rounds {
			answer = resp
			t.stopReason = StopMaxToolRounds
			log.Warnw("tool round limit reached", "rounds", t.toolRounds, "pending_tools", len(uses))
			break
		}

		assistant := withToolUseIDs(resp.Content)
		results := o.executeTools(ctx, toolUses(assistant), tc, t, emit, log)
		if ctx.Err() != nil {
			return t, nil, ctx.Err()
		}

		chatReq.Messages = append(chatReq.Messages,
			ai.Message{Role: ai.RoleAssistant, Content: assistant},
			ai.Message{Role: ai.RoleUser, Content: results},
		)
		t.toolRounds++
	}

	text := strings.TrimSpace(answer.Text())
	if text == "" {
		text = emptyAnswer
	}

	check := verifier.Verify(text, t.results)
	for _, f := range check.Findings {
		metrics.RecordVerifierWarning(f.Check)
	}
	confidence := verifier.ComputeConfidence(t.signals(), check.Penalty)

	now := o.now()
	resp := &ChatResponse{
		TurnID:     t.id,
		Answer:     text,
		Data:       t.data(),
		ToolTrace:  t.trace,
		Confidence: confidence,
		Warnings:   check.Warnings(),
		LoopMeta:   t.meta(now),
	}

	o.sink.Record(context.WithoutCancel(ctx), t.audit(confidence, now))
	metrics.RecordTurn(mode, "ok", now.Sub(t.started), confidence)

	log.Infow("turn complete",
		"iterations", t.iterations,
		"tool_calls", len(t.trace),
		"confidence", confidence,
		"warnings", len(resp.Warnings),
		"elapsed", now.Sub(t.started),
	)
	return t, resp, nil
}

func (o *Orchestrator) call(ctx context.Context, req ai.ChatRequest, t *turn) (*ai.ChatResponse, error) {
	t.llmCalls++
	start := o.now()
	resp, err := o.provider.Chat(ctx, req)
	latency := o.now().Sub(start)

	var in, out int
	model := req.Model
	if resp != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
		if resp.Model != "" {
			model = resp.Model
		}
	}
	metrics.RecordLLMCall(o.provider.Name(), model, latency, in, out, err)

	if err != nil {
		return nil, errors.Wrapf(err, "llm call %d", t.llmCalls)
	}
	return resp, nil
}

// executeTools runs the requested tools one after another in request order and
// returns the tool_result blocks for the next provider call.
func (o *Orchestrator) executeTools(
	ctx context.Context,
	uses []ai.ContentBlock,
	tc tools.ToolContext,
	t *turn,
	emit Emitter,
	log *logger.Logger,
) []ai.ContentBlock {
	results := make([]ai.ContentBlock, 0, len(uses))

	for _, use := range uses {
		if ctx.Err() != nil {
			break
		}
		emit(toolStart(use.Name))

		start := o.now()
		var (
			out interface{}
			err error
		)
		if o.registry == nil || !o.registry.IsEnabled(use.Name) {
			err = errors.New(unknownToolErr)
		} else {
			out, err = o.registry.Execute(ctx, use.Name, use.Input, tc)
		}
		row := TraceRow{Tool: use.Name, OK: err == nil, Ms: o.now().Sub(start).Milliseconds()}

		var payload []byte
		if err == nil {
			payload, err = json.Marshal(out)
			if err != nil {
				row.OK = false
				err = errors.Wrap(err, "encode tool result")
			}
		}
		if err != nil {
			row.Error = err.Error()
			payload, _ = json.Marshal(map[string]string{"error": row.Error})
			log.Warnw("tool failed", "tool", use.Name, "error", err)
		}

		t.record(row, out)
		results = append(results, ai.ToolResultBlock(use.ID, string(payload), !row.OK))
		emit(toolEnd(row, toolDetail(out, len(payload), err)))
	}
	return results
}

// failure records a provider-failed turn and builds its fixed low-confidence answer
func (o *Orchestrator) failure(ctx context.Context, t *turn, mode string) *ChatResponse {
	now := o.now()
	t.stopReason = StopError
	metrics.RecordTurn(mode, StopError, now.Sub(t.started), failureConfidence)
	o.sink.Record(context.WithoutCancel(ctx), t.audit(failureConfidence, now))

	return &ChatResponse{
		TurnID:     t.id,
		Answer:     llmFailureAnswer,
		Data:       t.data(),
		ToolTrace:  t.trace,
		Confidence: failureConfidence,
		Warnings:   []string{},
		LoopMeta:   t.meta(now),
	}
}

func (o *Orchestrator) toolDefinitions() []ai.ToolDefinition {
	if o.registry == nil {
		return nil
	}
	defs := o.registry.Definitions()
	out := make([]ai.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, ai.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return out
}

// withToolUseIDs copies content and gives every tool_use block an id, so the
// matching tool_result can reference it.
func withToolUseIDs(content []ai.ContentBlock) []ai.ContentBlock {
	out := make([]ai.ContentBlock, len(content))
	copy(out, content)
	for i := range out {
		if out[i].Type == ai.BlockToolUse && out[i].ID == "" {
			out[i].ID = "toolu_" + strings.ReplaceAll(uuid.New().String(), "-", "")
		}
	}
	return out
}

func toolUses(content []ai.ContentBlock) []ai.ContentBlock {
	var out []ai.ContentBlock
	for _, b := range content {
		if b.Type == ai.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// toolDetail is the short human-readable summary sent with tool_end
func toolDetail(out interface{}, size int, err error) string {
	if err != nil {
		msg := err.Error()
		if len(msg) > maxDetailLength {
			msg = msg[:maxDetailLength] + "..."
		}
		return msg
	}
	if h, ok := out.(interface{ HoldingCount() int }); ok {
		n := h.HoldingCount()
		if n == 1 {
			return "1 holding"
		}
		return fmt.Sprintf("%s holdings", humanize.Comma(int64(n)))
	}
	return humanize.Bytes(uint64(size)) + " of data"
}

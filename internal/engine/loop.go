package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/coda/internal/classify"
	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/llm"
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

// maxSafetyIterations is the unbounded-recursion safety valve: the tool
// weave in §4.5 has no fixed depth bound, only token pressure and
// cancellation, but a bug in either of those must not spin the engine
// forever. This is deliberately generous compared to the teacher's
// MaxIterations=10 default, which was the primary bound there.
const maxSafetyIterations = 1000

// Accountant estimates token pressure ahead of a request, letting the
// loop decide whether to compact before calling the provider again. It is
// satisfied by internal/tokens.Accountant; engine only depends on the
// interface to keep the two packages decoupled.
type Accountant interface {
	Pressure(modelID string, system string, messages []*model.Message, tools []toolexec.Tool) float64
}

// Compactor reduces a conversation's history under token pressure. It is
// satisfied by internal/tokens.Compactor.
type Compactor interface {
	Compact(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
}

// Config configures a Loop.
type Config struct {
	Provider     llm.Provider
	ModelID      string
	Tools        *toolexec.Registry
	Executor     *toolexec.Executor
	Gate         *HookGate
	Accountant   Accountant
	Compactor    Compactor
	SystemPrompt string

	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int

	// MaxIterations is a safety-valve backstop, not the primary recursion
	// bound (see maxSafetyIterations). Zero means use the default.
	MaxIterations int

	// CompactionThreshold overrides the 75% auto-compact trigger fraction.
	CompactionThreshold float64
}

func (c Config) sanitized() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = maxSafetyIterations
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.CompactionThreshold <= 0 {
		c.CompactionThreshold = 0.75
	}
	if c.Gate == nil {
		c.Gate = NewHookGate(nil, nil, toolexec.Profile{})
	}
	return c
}

// Loop drives one conversation through the streaming request/tool-weave
// recursion described for the conversation engine: build a request,
// stream the response, execute any tool_use blocks inline, feed their
// results back, and repeat until the model stops asking for tools.
type Loop struct {
	cfg Config
}

// New builds a Loop.
func New(cfg Config) *Loop {
	return &Loop{cfg: cfg.sanitized()}
}

// Run drives conv forward by one user turn, streaming Events until the
// turn completes, is cancelled, or fails. The returned channel is closed
// after the terminal event (Done or Error) is sent.
func (l *Loop) Run(ctx context.Context, conv *Conversation, userInput string) (<-chan *Event, error) {
	if l.cfg.Provider == nil {
		return nil, fmt.Errorf("engine: no provider configured")
	}
	if conv == nil {
		return nil, fmt.Errorf("engine: conversation is nil")
	}

	events := make(chan *Event, 16)

	go func() {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "engine.Run", trace.WithAttributes(
			attribute.String("coda.conversation_id", conv.ID),
			attribute.String("coda.model", l.cfg.ModelID),
		))
		defer span.End()
		defer close(events)

		promptEvt := hooks.NewEvent(hooks.EventUserPromptSubmit, conv.ID).WithExtra("prompt", userInput)
		resp, err := l.cfg.Gate.Fire(ctx, promptEvt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.emitError(events, PhaseInit, 0, err)
			return
		}
		if resp != nil && !resp.Continue {
			l.emitError(events, PhaseInit, 0, fmt.Errorf("blocked by user_prompt_submit hook: %s", resp.Reason))
			return
		}

		content := userInput
		if payload, err := hooks.DecodeUserPromptSubmitPayload(resp); err == nil && payload.AdditionalContext != "" {
			content = payload.AdditionalContext + "\n\n" + userInput
		}

		conv.Append(&model.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Role:           model.RoleUser,
			Content:        content,
			CreatedAt:      time.Now(),
		})

		l.drive(ctx, conv, events)
	}()

	return events, nil
}

// drive runs the Stream -> ExecuteTools -> Continue recursion until the
// model produces a tool-free turn, the conversation is cancelled, or the
// safety-valve iteration count is reached.
func (l *Loop) drive(ctx context.Context, conv *Conversation, events chan<- *Event) {
	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			conv.abandonPending()
			l.emitError(events, PhaseStream, iteration, classify.ErrContextAborted)
			return
		default:
		}

		if err := l.maybeCompact(ctx, conv, events); err != nil {
			l.emitError(events, PhaseStream, iteration, err)
			return
		}

		assistantMsg, toolCalls, err := l.streamPhase(ctx, conv, events, iteration)
		if err != nil {
			l.emitError(events, PhaseStream, iteration, err)
			return
		}
		conv.Append(assistantMsg)

		if len(toolCalls) == 0 {
			l.fireStop(ctx, conv)
			events <- &Event{Kind: EventDone, Usage: conv.Usage}
			return
		}

		ids := make([]string, len(toolCalls))
		for i, tc := range toolCalls {
			ids[i] = tc.ID
		}
		conv.markPending(ids...)

		results, err := l.executeToolsPhase(ctx, conv, events, toolCalls, iteration)
		if err != nil {
			conv.abandonPending()
			l.emitError(events, PhaseExecuteTools, iteration, err)
			return
		}

		conv.Append(&model.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Role:           model.RoleTool,
			ToolResults:    results,
			CreatedAt:      time.Now(),
		})
	}

	l.emitError(events, PhaseComplete, l.cfg.MaxIterations, classify.ErrMaxIterations)
}

// streamPhase issues one completion request and collects the assistant
// message and any tool_use blocks it asked for. It does not execute tools:
// the collected calls are returned and run by executeToolsPhase only after
// the stream has ended.
func (l *Loop) streamPhase(ctx context.Context, conv *Conversation, events chan<- *Event, iteration int) (*model.Message, []model.ToolCall, error) {
	req := &llm.Request{
		Model:                l.cfg.ModelID,
		System:               l.cfg.SystemPrompt,
		Messages:             conv.Messages,
		MaxTokens:            l.cfg.MaxTokens,
		EnableThinking:       l.cfg.EnableThinking,
		ThinkingBudgetTokens: l.cfg.ThinkingBudgetTokens,
	}
	if l.cfg.Tools != nil {
		req.Tools = l.cfg.Tools.List()
	}

	stream, err := l.cfg.Provider.Complete(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var text string
	var toolCalls []model.ToolCall
	var usage model.Usage

	for chunk := range stream {
		switch {
		case chunk.Error != nil:
			return nil, nil, chunk.Error
		case chunk.ThinkingStart:
			events <- &Event{Kind: EventThinkingStart}
		case chunk.Thinking != "":
			events <- &Event{Kind: EventThinking, Text: chunk.Thinking}
		case chunk.ThinkingEnd:
			events <- &Event{Kind: EventThinkingEnd}
		case chunk.Text != "":
			text += chunk.Text
			events <- &Event{Kind: EventText, Text: chunk.Text}
		case chunk.ToolCall != nil:
			toolCalls = append(toolCalls, *chunk.ToolCall)
			events <- &Event{Kind: EventToolStarted, ToolCallID: chunk.ToolCall.ID, ToolName: chunk.ToolCall.Name}
		case chunk.Done:
			usage = chunk.Usage
		}
	}

	conv.mergeUsage(usage)

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        text,
		ToolCalls:      toolCalls,
		CreatedAt:      time.Now(),
	}
	return msg, toolCalls, nil
}

// executeToolsPhase gates each tool_use block through PreToolUse, runs the
// allowed ones through the executor, and returns their results in the
// same order as the originating tool_use blocks regardless of which
// finished first.
func (l *Loop) executeToolsPhase(ctx context.Context, conv *Conversation, events chan<- *Event, calls []model.ToolCall, iteration int) ([]model.ToolResult, error) {
	results := make([]model.ToolResult, len(calls))
	runnable := make([]model.ToolCall, 0, len(calls))
	runnableIdx := make([]int, 0, len(calls))

	for i, call := range calls {
		decision, reason, err := l.cfg.Gate.EvaluateTool(ctx, conv.ID, toolCallView{ID: call.ID, Name: call.Name, Input: call.Input})
		if err != nil {
			return nil, fmt.Errorf("evaluate tool %s: %w", call.Name, err)
		}
		if decision == toolexec.DecisionDeny {
			results[i] = model.ToolResult{ToolCallID: call.ID, Content: reason, IsError: true}
			conv.resolvePending(call.ID, true)
			continue
		}
		runnable = append(runnable, call)
		runnableIdx = append(runnableIdx, i)
	}

	if l.cfg.Executor != nil && len(runnable) > 0 {
		outcomes := l.cfg.Executor.ExecuteAll(ctx, runnable)
		for j, outcome := range outcomes {
			idx := runnableIdx[j]
			var res model.ToolResult
			switch {
			case outcome.Err != nil:
				res = model.ToolResult{ToolCallID: outcome.ToolCallID, Content: outcome.Err.Error(), IsError: true}
			case outcome.Result != nil:
				res = model.ToolResult{ToolCallID: outcome.ToolCallID, Content: outcome.Result.Content, IsError: outcome.Result.IsError}
			default:
				res = model.ToolResult{ToolCallID: outcome.ToolCallID, IsError: true, Content: "tool produced no result"}
			}
			results[idx] = res
			conv.resolvePending(outcome.ToolCallID, res.IsError)

			postEvt := hooks.NewEvent(hooks.EventPostToolUse, conv.ID).WithTool(outcome.ToolName, outcome.ToolCallID, nil)
			payload, _ := json.Marshal(res)
			postEvt.ToolResponse = payload
			if _, err := l.cfg.Gate.Fire(ctx, postEvt); err != nil {
				return nil, err
			}
			events <- &Event{Kind: EventToolCompleted, ToolCallID: outcome.ToolCallID, ToolName: outcome.ToolName, ToolResult: &res}
		}
	}

	return results, nil
}

func (l *Loop) maybeCompact(ctx context.Context, conv *Conversation, events chan<- *Event) error {
	if l.cfg.Accountant == nil || l.cfg.Compactor == nil {
		return nil
	}

	var tools []toolexec.Tool
	if l.cfg.Tools != nil {
		tools = l.cfg.Tools.List()
	}
	pressure := l.cfg.Accountant.Pressure(l.cfg.ModelID, l.cfg.SystemPrompt, conv.Messages, tools)
	if pressure < l.cfg.CompactionThreshold {
		return nil
	}

	preEvt := hooks.NewEvent(hooks.EventPreCompact, conv.ID)
	if _, err := l.cfg.Gate.Fire(ctx, preEvt); err != nil {
		return err
	}

	compacted, err := l.cfg.Compactor.Compact(ctx, conv.Conversation)
	if err != nil {
		return fmt.Errorf("compact conversation: %w", err)
	}
	conv.Conversation = compacted
	events <- &Event{Kind: EventCompaction}
	return nil
}

func (l *Loop) fireStop(ctx context.Context, conv *Conversation) {
	evt := hooks.NewEvent(hooks.EventStop, conv.ID)
	_, _ = l.cfg.Gate.Fire(ctx, evt)
}

func (l *Loop) emitError(events chan<- *Event, phase Phase, iteration int, err error) {
	events <- &Event{Kind: EventError, Err: &LoopError{Phase: phase, Iteration: iteration, Cause: err}}
}

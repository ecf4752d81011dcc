package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Generator is the chat completion surface an agent needs. *llm.Model satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Executor runs one specialist task.
type Executor interface {
	Execute(ctx context.Context, task models.SpecialistTask) (models.SpecialistResult, error)
}

// Agent answers a task with a system prompt and an optional tool-calling loop.
type Agent struct {
	profile Profile
	gen     Generator
	tools   map[string]tools.Tool
	defs    []llms.Tool
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewAgent creates an agent for profile using the given tools.
func NewAgent(profile Profile, gen Generator, toolset []tools.Tool, logger *slog.Logger, m *metrics.Collector) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if profile.MaxToolIterations <= 0 {
		profile.MaxToolIterations = DefaultMaxToolIterations
	}
	a := &Agent{
		profile: profile,
		gen:     gen,
		tools:   make(map[string]tools.Tool, len(toolset)),
		logger:  logger.With("specialist", string(profile.ID)),
		metrics: m,
	}
	for _, t := range toolset {
		a.tools[t.Name()] = t
		a.defs = append(a.defs, tools.Definition(t))
	}
	return a
}

// Profile returns the agent's catalog entry.
func (a *Agent) Profile() Profile {
	return a.profile
}

// Execute runs the task. The returned result is filled in on failure too.
func (a *Agent) Execute(ctx context.Context, task models.SpecialistTask) (models.SpecialistResult, error) {
	start := time.Now()
	text, calls, err := a.run(ctx, task)
	elapsed := time.Since(start)
	a.metrics.RecordOutcome(metrics.OpSpecialist, elapsed, err)

	result := models.SpecialistResult{
		SpecialistID: a.profile.ID,
		ElapsedMs:    elapsed.Milliseconds(),
		ToolCalls:    calls,
	}
	if err != nil {
		a.metrics.Increment(metrics.CounterSpecialistFailed)
		a.logger.Warn("specialist failed", "tool_calls", calls, "duration_ms", result.ElapsedMs, "error", err)
		result.Error = models.Ptr(err.Error())
		return result, err
	}

	result.Text = text
	result.Succeeded = true
	a.logger.Info("specialist done", "tool_calls", calls, "duration_ms", result.ElapsedMs)
	return result, nil
}

func (a *Agent) run(ctx context.Context, task models.SpecialistTask) (string, int, error) {
	scope := tools.Scope{
		UserID:         task.Input[models.TaskKeyUserID],
		ConversationID: task.Input[models.TaskKeyConversationID],
		AgentID:        string(a.profile.ID),
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt(a.profile)),
		llms.TextParts(llms.ChatMessageTypeHuman, TaskPrompt(task.Input)),
	}

	var opts []llms.CallOption
	if len(a.defs) > 0 {
		opts = append(opts, llms.WithTools(a.defs))
	}

	calls := 0
	for round := 0; ; round++ {
		response, err := a.gen.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return "", calls, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
		}
		if len(response.Choices) == 0 {
			return "", calls, fmt.Errorf("%w: no response choices", ErrExecutionFailed)
		}
		choice := response.Choices[0]

		if len(choice.ToolCalls) == 0 {
			text := strings.TrimSpace(choice.Content)
			if text == "" {
				return "", calls, fmt.Errorf("%w: empty response", ErrExecutionFailed)
			}
			return text, calls, nil
		}

		if round >= a.profile.MaxToolIterations {
			return "", calls, fmt.Errorf("%w: %d rounds", ErrIterationLimit, a.profile.MaxToolIterations)
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		messages = append(messages, assistant)

		for _, tc := range choice.ToolCalls {
			calls++
			output := a.callTool(ctx, scope, tc)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       toolName(tc),
					Content:    output,
				}},
			})
		}
	}
}

func (a *Agent) callTool(ctx context.Context, scope tools.Scope, tc llms.ToolCall) string {
	name := toolName(tc)
	t, ok := a.tools[name]
	if !ok {
		a.logger.Warn("model requested unknown tool", "tool", name)
		return tools.ErrorResult(fmt.Sprintf("ferramenta %q não existe", name), "Use apenas as ferramentas disponíveis")
	}

	args := "{}"
	if tc.FunctionCall != nil && strings.TrimSpace(tc.FunctionCall.Arguments) != "" {
		args = tc.FunctionCall.Arguments
	}

	start := time.Now()
	out := t.Call(ctx, scope, []byte(args))
	a.logger.Debug("tool call", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return out
}

func toolName(tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		return ""
	}
	return tc.FunctionCall.Name
}

// SystemPrompt renders the profile as a system message.
func SystemPrompt(p Profile) string {
	var b strings.Builder
	if p.Role != "" {
		fmt.Fprintf(&b, "Papel: %s\n", p.Role)
	}
	if p.Goal != "" {
		fmt.Fprintf(&b, "Objetivo: %s\n", p.Goal)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimSpace(p.Prompt))
	return b.String()
}

// Labels for the context sections of the task prompt, in render order.
var taskSections = []struct {
	key   string
	label string
}{
	{models.TaskKeyUserProfile, "Perfil do usuário"},
	{models.TaskKeyCompanyContext, "Empresa"},
	{models.TaskKeyFinancialSummary, "Resumo financeiro"},
}

// TaskPrompt renders task input as the human message. The user message comes
// last; keys without a section label are listed as extra context.
func TaskPrompt(input map[string]string) string {
	var b strings.Builder
	for _, s := range taskSections {
		if v := strings.TrimSpace(input[s.key]); v != "" {
			fmt.Fprintf(&b, "%s:\n%s\n\n", s.label, v)
		}
	}

	known := map[string]bool{
		models.TaskKeyUserMessage: true,
		models.TaskKeyRequestID:   true,
		models.TaskKeyUserID:      true,
		models.TaskKeyPhoneNumber: true,
	}
	for _, s := range taskSections {
		known[s.key] = true
	}
	var extra []string
	for k := range input {
		if !known[k] && strings.TrimSpace(input[k]) != "" {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		b.WriteString("Contexto adicional:\n")
		for _, k := range extra {
			fmt.Fprintf(&b, "- %s: %s\n", k, input[k])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Mensagem do usuário: %s", input[models.TaskKeyUserMessage])
	return b.String()
}

// ErrorType maps a specialist failure to its reported type name.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSpecialist):
		return "UnknownSpecialist"
	case errors.Is(err, ErrIterationLimit):
		return "IterationLimitExceeded"
	default:
		return "SpecialistExecutionFailed"
	}
}

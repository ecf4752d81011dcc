package specialist_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/falachefe/consultant/internal/llm"
	"github.com/falachefe/consultant/internal/llm/llmtest"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/specialist"
	"github.com/falachefe/consultant/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type echoTool struct {
	name   string
	calls  atomic.Int32
	scopes []tools.Scope
	args   []string
}

func (t *echoTool) Name() string { return t.name }

func (t *echoTool) Description() string { return "echo" }

func (t *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *echoTool) Call(_ context.Context, scope tools.Scope, args json.RawMessage) string {
	t.calls.Add(1)
	t.scopes = append(t.scopes, scope)
	t.args = append(t.args, string(args))
	return "saldo: R$ 100,00"
}

func testTask() models.SpecialistTask {
	return models.SpecialistTask{
		SpecialistID: models.SpecialistFinancial,
		ProducedBy:   "pipeline",
		Input: map[string]string{
			models.TaskKeyUserID:           "user-1",
			models.TaskKeyConversationID:   "conv-1",
			models.TaskKeyUserMessage:      "Qual meu saldo?",
			models.TaskKeyUserProfile:      "Nome: Ana",
			models.TaskKeyFinancialSummary: "Saldo: R$ 100,00",
		},
	}
}

func profile(maxIter int, toolNames ...string) specialist.Profile {
	return specialist.Profile{
		ID:                models.SpecialistFinancial,
		Name:              "Leo",
		Role:              "Mentor financeiro",
		Prompt:            "Responda em português.",
		MaxToolIterations: maxIter,
		Tools:             toolNames,
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := specialist.LoadCatalog("")
	require.NoError(t, err)
	require.Len(t, c.Specialists, 3)

	byID := map[models.SpecialistID]specialist.Profile{}
	for _, p := range c.Specialists {
		byID[p.ID] = p
		assert.Equal(t, 15, p.MaxToolIterations, p.ID)
		assert.NotEmpty(t, p.Prompt, p.ID)
	}
	assert.Contains(t, byID[models.SpecialistFinancial].Tools, "get_cashflow_balance")
	assert.Contains(t, byID[models.SpecialistFinancial].Tools, "add_cashflow_transaction")
	assert.Contains(t, byID, models.SpecialistMarketingSales)
	assert.Contains(t, byID, models.SpecialistHR)

	// Every catalog tool exists in the built-in registry.
	_, err = specialist.NewRegistry(c, llmtest.NewModelWithText("ok"), tools.RegisterAll(&tools.Dependencies{}), nil, nil)
	require.NoError(t, err)
}

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		wantMax int
	}{
		{"default iterations", "specialists:\n  - id: hr\n    prompt: p\n", false, 15},
		{"explicit iterations", "specialists:\n  - id: hr\n    prompt: p\n    max_tool_iterations: 3\n", false, 3},
		{"empty", "specialists: []\n", true, 0},
		{"unknown id", "specialists:\n  - id: legal\n    prompt: p\n", true, 0},
		{"none id", "specialists:\n  - id: none\n    prompt: p\n", true, 0},
		{"duplicate", "specialists:\n  - id: hr\n    prompt: p\n  - id: hr\n    prompt: q\n", true, 0},
		{"no prompt", "specialists:\n  - id: hr\n", true, 0},
		{"negative", "specialists:\n  - id: hr\n    prompt: p\n    max_tool_iterations: -1\n", true, 0},
		{"bad yaml", "specialists: [", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := specialist.ParseCatalog([]byte(tt.yaml))
			if tt.wantErr {
				require.ErrorIs(t, err, specialist.ErrInvalidCatalog)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, c.Specialists[0].MaxToolIterations)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("specialists:\n  - id: financial\n    prompt: custom\n"), 0o600))

	c, err := specialist.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Specialists, 1)
	assert.Equal(t, "custom", c.Specialists[0].Prompt)

	_, err = specialist.LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	c, err := specialist.LoadCatalog("")
	require.NoError(t, err)
	reg, err := specialist.NewRegistry(c, llmtest.NewModelWithText("ok"), tools.RegisterAll(&tools.Dependencies{}), nil, nil)
	require.NoError(t, err)

	for _, id := range models.SpecialistIDs {
		e, err := reg.Lookup(id)
		require.NoError(t, err, id)
		require.NotNil(t, e)
	}

	_, err = reg.Lookup(models.SpecialistNone)
	require.ErrorIs(t, err, specialist.ErrUnknownSpecialist)
	var unknown *specialist.UnknownSpecialistError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, models.SpecialistNone, unknown.ID)

	assert.Len(t, reg.Profiles(), 3)
}

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, task models.SpecialistTask) (models.SpecialistResult, error) {
	return models.SpecialistResult{SpecialistID: task.SpecialistID, Text: "ok", Succeeded: true}, nil
}

func TestRegistryRegister(t *testing.T) {
	var reg specialist.Registry

	require.NoError(t, reg.Register(models.SpecialistHR, stubExecutor{}))
	e, err := reg.Lookup(models.SpecialistHR)
	require.NoError(t, err)
	assert.Equal(t, stubExecutor{}, e)

	for _, id := range []models.SpecialistID{models.SpecialistNone, "legal", "", "Financial"} {
		err := reg.Register(id, stubExecutor{})
		require.ErrorIs(t, err, specialist.ErrUnknownSpecialist, id)
		_, err = reg.Lookup(id)
		require.ErrorIs(t, err, specialist.ErrUnknownSpecialist, id)
	}
}

func TestNewRegistryUnknownTool(t *testing.T) {
	c := specialist.Catalog{Specialists: []specialist.Profile{profile(5, "does_not_exist")}}
	_, err := specialist.NewRegistry(c, llmtest.NewModelWithText("ok"), tools.NewRegistry(), nil, nil)
	require.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestAgentDirectAnswer(t *testing.T) {
	model := llmtest.NewModelWithText("  Seu saldo é R$ 100,00.  ")
	m := metrics.NewCollector()
	agent := specialist.NewAgent(profile(15), llm.NewModelFrom(model, "fake"), nil, nil, m)

	res, err := agent.Execute(context.Background(), testTask())
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, "Seu saldo é R$ 100,00.", res.Text)
	assert.Equal(t, models.SpecialistFinancial, res.SpecialistID)
	assert.Zero(t, res.ToolCalls)
	assert.Nil(t, res.Error)
	assert.Equal(t, 1, model.Calls())

	msgs := model.LastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	human := msgs[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "Nome: Ana")
	assert.Contains(t, human, "Mensagem do usuário: Qual meu saldo?")

	snap := m.Snapshot()
	require.NotNil(t, snap.Specialist)
	assert.Equal(t, int64(1), snap.Specialist.Count)
}

func TestAgentToolLoop(t *testing.T) {
	tool := &echoTool{name: "get_cashflow_balance"}
	model := llmtest.NewModel(func(_ context.Context, msgs []llms.MessageContent, opts llms.CallOptions) (*llms.ContentResponse, error) {
		if len(opts.Tools) != 1 {
			return nil, errors.New("tools not offered")
		}
		last := msgs[len(msgs)-1]
		if last.Role == llms.ChatMessageTypeTool {
			resp := last.Parts[0].(llms.ToolCallResponse)
			return llmtest.TextResponse("Resposta final com " + resp.Content), nil
		}
		return llmtest.ToolCallResponse("call-1", "get_cashflow_balance", `{"period":"current_month"}`), nil
	})
	agent := specialist.NewAgent(profile(15), model, []tools.Tool{tool}, nil, nil)

	res, err := agent.Execute(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, "Resposta final com saldo: R$ 100,00", res.Text)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, 2, model.Calls())

	require.Len(t, tool.scopes, 1)
	assert.Equal(t, tools.Scope{UserID: "user-1", ConversationID: "conv-1", AgentID: "financial"}, tool.scopes[0])
	assert.Equal(t, `{"period":"current_month"}`, tool.args[0])

	msgs := model.LastMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	call, ok := msgs[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.ID)
}

func TestAgentUnknownToolIsReportedToModel(t *testing.T) {
	var toolOutput string
	model := llmtest.NewModel(func(_ context.Context, msgs []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		last := msgs[len(msgs)-1]
		if last.Role == llms.ChatMessageTypeTool {
			toolOutput = last.Parts[0].(llms.ToolCallResponse).Content
			return llmtest.TextResponse("ok"), nil
		}
		return llmtest.ToolCallResponse("c1", "nope", ""), nil
	})
	agent := specialist.NewAgent(profile(15), model, nil, nil, nil)

	res, err := agent.Execute(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Contains(t, toolOutput, "Erro:")
	assert.Contains(t, toolOutput, "nope")
}

func TestAgentIterationLimit(t *testing.T) {
	tool := &echoTool{name: "get_cashflow_balance"}
	model := llmtest.NewModel(func(context.Context, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return llmtest.ToolCallResponse("c", "get_cashflow_balance", "{}"), nil
	})
	m := metrics.NewCollector()
	agent := specialist.NewAgent(profile(3), model, []tools.Tool{tool}, nil, m)

	res, err := agent.Execute(context.Background(), testTask())
	require.ErrorIs(t, err, specialist.ErrIterationLimit)
	assert.False(t, res.Succeeded)
	require.NotNil(t, res.Error)
	assert.Equal(t, int32(3), tool.calls.Load())
	assert.Equal(t, 4, model.Calls())
	assert.Equal(t, "IterationLimitExceeded", specialist.ErrorType(err))
	assert.Equal(t, int64(1), m.Snapshot().Counters[metrics.CounterSpecialistFailed])
}

func TestAgentFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *llmtest.Model
	}{
		{"provider error", llmtest.NewModelWithError(errors.New("boom"))},
		{"empty answer", llmtest.NewModelWithText("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := specialist.NewAgent(profile(15), tt.model, nil, nil, nil)
			res, err := agent.Execute(context.Background(), testTask())
			require.ErrorIs(t, err, specialist.ErrExecutionFailed)
			assert.False(t, res.Succeeded)
			assert.Empty(t, res.Text)
			assert.Equal(t, "SpecialistExecutionFailed", specialist.ErrorType(err))
		})
	}
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "UnknownSpecialist", specialist.ErrorType(&specialist.UnknownSpecialistError{ID: "x"}))
	assert.Equal(t, "SpecialistExecutionFailed", specialist.ErrorType(errors.New("other")))
}

func TestTaskPrompt(t *testing.T) {
	prompt := specialist.TaskPrompt(map[string]string{
		models.TaskKeyUserMessage:    "oi",
		models.TaskKeyCompanyContext: "Padaria",
		models.TaskKeyUserID:         "u1",
		"channel":                    "whatsapp",
		"empty":                      " ",
	})
	assert.Contains(t, prompt, "Empresa:\nPadaria")
	assert.Contains(t, prompt, "- channel: whatsapp")
	assert.NotContains(t, prompt, "u1")
	assert.NotContains(t, prompt, "empty")
	assert.NotContains(t, prompt, "Perfil do usuário")
	assert.Regexp(t, "Mensagem do usuário: oi$", prompt)
}

func TestSystemPrompt(t *testing.T) {
	p := specialist.SystemPrompt(specialist.Profile{Role: "R", Goal: "G", Prompt: "  corpo  "})
	assert.Equal(t, "Papel: R\nObjetivo: G\n\ncorpo", p)
	assert.Equal(t, "corpo", specialist.SystemPrompt(specialist.Profile{Prompt: "corpo"}))
}

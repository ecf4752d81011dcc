package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/falachefe/consultant/internal/models"
)

// historyTurns bounds how much conversation history goes into the prompt.
const historyTurns = 6

const systemPrompt = `Você é o classificador de mensagens do Falachefe, um consultor de negócios para pequenas empresas que atende pelo WhatsApp.

Classifique a mensagem do usuário em exatamente UMA das categorias:
- greeting: saudação (oi, olá, bom dia, boa tarde, boa noite)
- acknowledgment: agradecimento ou confirmação curta (obrigado, ok, entendi, valeu)
- financial_task: fluxo de caixa, receitas, despesas, saldo, lançamentos, relatórios financeiros
- marketing_query: marketing, redes sociais, campanhas, posicionamento de marca
- sales_query: vendas, prospecção, funil, negociação, precificação
- hr_query: recursos humanos, contratação, funcionários, folha, legislação trabalhista
- continuation: continuação de um assunto já em andamento na conversa
- general: qualquer outra pergunta sobre o negócio

Escolha o especialista adequado:
- financial: finanças e fluxo de caixa
- marketing_sales: marketing e vendas
- hr: recursos humanos
- none: nenhum especialista necessário

Responda SOMENTE com JSON, sem texto adicional:
{"type": "<categoria>", "specialist": "<especialista>", "confidence": 0.0-1.0, "reasoning": "<explicação breve>"}`

// Fixed replies for intents answered without a specialist.
const (
	WelcomeReply = "Olá! 👋 Sou o assistente do Falachefe. Posso ajudar com fluxo de caixa, marketing, vendas e RH da sua empresa. Como posso ajudar hoje?"

	AcknowledgmentReply = "Por nada! Se precisar de mais alguma coisa, é só chamar. 😊"

	ShortGreetingReply = "Olá! Como posso ajudar você hoje?"

	GeneralGuidanceReply = `Olá! Sou o assistente do Falachefe.

Posso ajudar você com:
💰 Fluxo de Caixa - adicionar, consultar e analisar transações
📢 Marketing e Vendas - campanhas, divulgação e estratégias comerciais
👥 RH - contratação, equipe e rotinas de pessoal

Conte um pouco mais sobre o que você precisa.`
)

type llmClassification struct {
	Type       string   `json:"type"`
	Specialist string   `json:"specialist"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func buildUserPrompt(text string, history []models.Turn) string {
	var b strings.Builder
	if len(history) > 0 {
		start := 0
		if len(history) > historyTurns {
			start = len(history) - historyTurns
		}
		b.WriteString("Histórico recente:\n")
		for _, turn := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, models.Truncate(turn.Content, 300))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Mensagem: %s", text)
	return b.String()
}

// stripFences removes a surrounding fenced code block, including an optional
// language tag after the opening fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResponse converts raw model output into a Classification.
func parseResponse(raw string) (models.Classification, error) {
	var out llmClassification
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return models.Classification{}, fmt.Errorf("%w: decode: %w", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.Type) == "" {
		return models.Classification{}, fmt.Errorf("%w: missing type", ErrMalformedResponse)
	}
	intent, ok := models.ParseIntentKind(strings.ToLower(strings.TrimSpace(out.Type)))
	if !ok {
		return models.Classification{}, fmt.Errorf("%w: unknown type %q", ErrMalformedResponse, out.Type)
	}

	confidence := 0.5
	if out.Confidence != nil {
		confidence = clamp(*out.Confidence)
	}

	c := models.Classification{
		Intent:     intent,
		Specialist: models.SpecialistNone,
		Confidence: confidence,
		Reasoning:  out.Reasoning,
	}

	switch intent {
	case models.IntentGreeting:
		c.DirectReply = models.Ptr(WelcomeReply)
	case models.IntentAcknowledgment:
		c.DirectReply = models.Ptr(AcknowledgmentReply)
	default:
		c.NeedsSpecialist = true
		c.Specialist = models.ParseSpecialistID(strings.ToLower(strings.TrimSpace(out.Specialist)))
	}
	return c, nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

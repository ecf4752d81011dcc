package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/falachefe/consultant/internal/models"
)

// Fallback confidences.
const (
	fallbackGreetingConfidence  = 0.9
	fallbackFinancialConfidence = 0.7
	fallbackGeneralConfidence   = 0.5
)

// shortMessageLimit: messages this short are treated as greetings.
const shortMessageLimit = 3

var greetings = []string{
	"oi",
	"olá",
	"ola",
	"opa",
	"eai",
	"e aí",
	"e ai",
	"bom dia",
	"boa tarde",
	"boa noite",
	"hello",
	"hi",
	"hey",
}

var financialKeywords = []string{
	"fluxo de caixa",
	"caixa",
	"receita",
	"despesa",
	"dinheiro",
	"lucro",
	"prejuízo",
	"prejuizo",
	"saldo",
	"gasto",
	"faturamento",
	"cash flow",
	"revenue",
	"expense",
	"money",
	"profit",
	"loss",
}

// Fallback classifies text with keyword rules. It is deterministic and is used
// whenever the model path fails.
func Fallback(text string) models.Classification {
	msg := normalize(text)

	if isGreeting(msg) {
		return models.Classification{
			Intent:      models.IntentGreeting,
			Specialist:  models.SpecialistNone,
			Confidence:  fallbackGreetingConfidence,
			DirectReply: models.Ptr(ShortGreetingReply),
			Reasoning:   "keyword fallback: greeting",
			Degraded:    true,
		}
	}

	if containsAny(msg, financialKeywords) {
		return models.Classification{
			Intent:          models.IntentFinancialTask,
			Specialist:      models.SpecialistFinancial,
			Confidence:      fallbackFinancialConfidence,
			NeedsSpecialist: true,
			Reasoning:       "keyword fallback: financial keyword",
			Degraded:        true,
		}
	}

	// General questions get static guidance here rather than a specialist.
	return models.Classification{
		Intent:      models.IntentGeneral,
		Specialist:  models.SpecialistNone,
		Confidence:  fallbackGeneralConfidence,
		DirectReply: models.Ptr(GeneralGuidanceReply),
		Reasoning:   "keyword fallback: no match",
		Degraded:    true,
	}
}

func normalize(text string) string {
	msg := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(msg, "!?.,;: ")
}

func isGreeting(msg string) bool {
	if utf8.RuneCountInString(msg) <= shortMessageLimit {
		return true
	}
	for _, g := range greetings {
		if msg == g || strings.HasPrefix(g, msg) {
			return true
		}
	}
	return false
}

func containsAny(msg string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

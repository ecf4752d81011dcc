package pipeline

import (
	"strings"

	"github.com/falachefe/consultant/internal/models"
)

// Route picks the specialist for a classification. An explicit specialist
// wins; otherwise the intent decides and anything unmapped goes to fallback.
func Route(c models.Classification, fallback models.SpecialistID) models.SpecialistID {
	if c.Specialist != "" && c.Specialist != models.SpecialistNone {
		return c.Specialist
	}
	switch c.Intent {
	case models.IntentFinancialTask:
		return models.SpecialistFinancial
	case models.IntentMarketingQuery, models.IntentSalesQuery:
		return models.SpecialistMarketingSales
	case models.IntentHRQuery:
		return models.SpecialistHR
	default:
		return fallback
	}
}

// TaskInput merges identity fields, then enrichment, then the caller's
// channel context. Later layers overwrite earlier ones.
func TaskInput(req models.Request, c models.Classification, enrichment map[string]string) map[string]string {
	input := map[string]string{
		models.TaskKeyRequestID:      req.RequestID,
		models.TaskKeyUserID:         req.UserID,
		models.TaskKeyConversationID: req.ConversationID,
		models.TaskKeyPhoneNumber:    req.Channel(models.ChannelKeyPhoneNumber),
		models.TaskKeyUserMessage:    req.RawText,
		models.TaskKeyIntent:         string(c.Intent),
	}
	for k, v := range enrichment {
		input[k] = v
	}
	for k, v := range req.ChannelContext {
		input[k] = v
	}
	return input
}

// Inline reports whether the response is returned to the caller instead of
// pushed through the delivery gateway.
func Inline(req models.Request, inlineSources []string) bool {
	if strings.EqualFold(strings.TrimSpace(req.Channel(models.ChannelKeyInline)), "true") {
		return true
	}
	source := strings.TrimSpace(req.Channel(models.ChannelKeySource))
	if source == "" {
		return false
	}
	for _, s := range inlineSources {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}

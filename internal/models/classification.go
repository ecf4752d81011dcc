package models

// IntentKind is the coarse category assigned to a message.
type IntentKind string

const (
	IntentGreeting       IntentKind = "greeting"
	IntentAcknowledgment IntentKind = "acknowledgment"
	IntentFinancialTask  IntentKind = "financial_task"
	IntentMarketingQuery IntentKind = "marketing_query"
	IntentSalesQuery     IntentKind = "sales_query"
	IntentHRQuery        IntentKind = "hr_query"
	IntentContinuation   IntentKind = "continuation"
	IntentGeneral        IntentKind = "general"
)

// IntentKinds lists every valid intent in prompt order.
var IntentKinds = []IntentKind{
	IntentGreeting,
	IntentAcknowledgment,
	IntentFinancialTask,
	IntentMarketingQuery,
	IntentSalesQuery,
	IntentHRQuery,
	IntentContinuation,
	IntentGeneral,
}

// ParseIntentKind reports whether s names a known intent.
func ParseIntentKind(s string) (IntentKind, bool) {
	for _, k := range IntentKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// SpecialistID identifies one of the fixed specialist capabilities.
type SpecialistID string

const (
	SpecialistNone           SpecialistID = "none"
	SpecialistFinancial      SpecialistID = "financial"
	SpecialistMarketingSales SpecialistID = "marketing_sales"
	SpecialistHR             SpecialistID = "hr"
)

// SpecialistIDs lists the routable specialists.
var SpecialistIDs = []SpecialistID{SpecialistFinancial, SpecialistMarketingSales, SpecialistHR}

// ParseSpecialistID maps s to a routable specialist; anything else is SpecialistNone.
func ParseSpecialistID(s string) SpecialistID {
	for _, id := range SpecialistIDs {
		if string(id) == s {
			return id
		}
	}
	return SpecialistNone
}

// Classification is the outcome of intent analysis for one Request.
type Classification struct {
	Intent          IntentKind   `json:"intent_kind"`
	Specialist      SpecialistID `json:"chosen_specialist"`
	Confidence      float64      `json:"confidence"`
	DirectReply     *string      `json:"direct_reply,omitempty"`
	NeedsSpecialist bool         `json:"needs_specialist"`
	Reasoning       string       `json:"reasoning,omitempty"`
	// Degraded is set when the keyword fallback produced this value.
	Degraded bool `json:"degraded"`
}

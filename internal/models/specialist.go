package models

// Keys of SpecialistTask.Input filled in by the pipeline.
const (
	TaskKeyRequestID        = "request_id"
	TaskKeyUserID           = "user_id"
	TaskKeyConversationID   = "conversation_id"
	TaskKeyPhoneNumber      = "phone_number"
	TaskKeyUserMessage      = "user_message"
	TaskKeyUserProfile      = "user_profile"
	TaskKeyCompanyContext   = "company_context"
	TaskKeyFinancialSummary = "financial_summary"
	TaskKeyIntent           = "intent"
)

// SpecialistTask is consumed exactly once by the chosen specialist.
type SpecialistTask struct {
	SpecialistID SpecialistID      `json:"specialist_id"`
	Input        map[string]string `json:"input_context"`
	ProducedBy   string            `json:"produced_by"`
}

// SpecialistResult is the terminal artifact of a specialist run.
type SpecialistResult struct {
	Text         string       `json:"text"`
	SpecialistID SpecialistID `json:"specialist_id"`
	ElapsedMs    int64        `json:"elapsed_ms"`
	Succeeded    bool         `json:"succeeded"`
	Error        *string      `json:"error,omitempty"`
	ToolCalls    int          `json:"tool_calls,omitempty"`
}

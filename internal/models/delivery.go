package models

// DeliveryOutcome records one push attempt to the messaging channel.
type DeliveryOutcome struct {
	Attempted        bool    `json:"attempted"`
	Succeeded        bool    `json:"succeeded"`
	ChannelMessageID *string `json:"channel_message_id,omitempty"`
	Status           string  `json:"status,omitempty"`
	Error            *string `json:"error,omitempty"`
}

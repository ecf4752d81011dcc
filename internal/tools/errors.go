package tools

import (
	"errors"
	"strings"
)

// ErrUnknownTool is returned when a specialist references a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// The text goes back to the model so it can self-correct.
func ErrorResult(msg, hint string) string {
	text := "Erro: " + msg
	if hint != "" {
		text += ". " + hint
	}
	return text
}

// TextResult creates a success result with text content.
func TextResult(text string) string {
	return strings.TrimSpace(text)
}

// FormatResults joins items with newlines for list output.
func FormatResults(items []string) string {
	return strings.Join(items, "\n")
}

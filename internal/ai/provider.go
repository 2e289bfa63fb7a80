package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider sends one chat completion request and returns the first candidate's text.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ErrEmptyCompletion is returned when the provider answers without any usable content.
var ErrEmptyCompletion = errors.New("ai: empty completion")

// ProviderError is a non-2xx or in-band error reported by an upstream provider.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Temporary reports whether a later attempt may succeed (timeouts, rate limits, upstream 5xx).
func (e *ProviderError) Temporary() bool {
	return e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests ||
		e.Status >= 500
}

// IsTemporary reports whether err carries a temporary ProviderError.
func IsTemporary(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Temporary()
}

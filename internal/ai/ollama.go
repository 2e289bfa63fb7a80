package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OllamaProvider talks to a local Ollama server's /api/chat with streaming off.
type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Model:   model,
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type ollamaChatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResp struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	var decoded ollamaChatResp
	url := strings.TrimRight(p.BaseURL, "/") + "/api/chat"
	if err := postJSON(ctx, p.Client, "ollama", url, nil, ollamaChatReq{Model: p.Model, Messages: messages}, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", &ProviderError{Provider: "ollama", Message: decoded.Error}
	}
	if strings.TrimSpace(decoded.Message.Content) == "" {
		return "", fmt.Errorf("ollama: %w", ErrEmptyCompletion)
	}
	return decoded.Message.Content, nil
}

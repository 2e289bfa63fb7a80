package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OpenRouterProvider calls the OpenRouter chat completions endpoint directly.
type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterChatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openrouter: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", errors.New("openrouter: model is required")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.APIKey)
	// optional attribution headers
	if p.SiteURL != "" {
		header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		header.Set("X-Title", p.AppName)
	}

	var decoded openRouterChatResp
	url := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	if err := postJSON(ctx, p.Client, "openrouter", url, header, openRouterChatReq{Model: model, Messages: messages}, &decoded); err != nil {
		return "", err
	}

	// openrouter reports some upstream failures in-band with a 200
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", &ProviderError{Provider: "openrouter", Status: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openrouter: %w", ErrEmptyCompletion)
	}
	return decoded.Choices[0].Message.Content, nil
}

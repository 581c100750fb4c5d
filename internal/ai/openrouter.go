package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenRouterProvider struct {
	BaseURL     string
	APIKey      string
	Model       string
	SiteURL     string
	AppName     string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

type openRouterMsg struct {
	Role       string     `json:"role"`
	Content    any        `json:"content,omitempty"` // string or []openRouterPart
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type openRouterPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterChatReq struct {
	Model       string          `json:"model"`
	Messages    []openRouterMsg `json:"messages"`
	Tools       []Tool          `json:"tools,omitempty"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string, temperature float64, maxTokens int) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		SiteURL:     siteURL,
		AppName:     appName,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Client:      &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *OpenRouterProvider) encodeMessages(messages []Message) []openRouterMsg {
	out := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		om := openRouterMsg{
			Role:       m.Role,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}
		switch {
		case m.ImageData != "":
			parts := []openRouterPart{}
			if m.Content != "" {
				parts = append(parts, openRouterPart{Type: "text", Text: m.Content})
			}
			parts = append(parts, openRouterPart{
				Type:     "image_url",
				ImageURL: &openRouterImageURL{URL: m.ImageData},
			})
			om.Content = parts
		case m.Content != "":
			om.Content = m.Content
		}
		out = append(out, om)
	}
	return out
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message, tools []Tool) (*Result, error) {
	if p.Client == nil {
		return nil, errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, errors.New("openrouter: model is required")
	}

	reqBody := openRouterChatReq{
		Model:       model,
		Messages:    p.encodeMessages(messages),
		Tools:       tools,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      false,
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &ProviderError{
			Provider:   "openrouter",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("openrouter: empty response")
	}

	msg := decoded.Choices[0].Message
	return &Result{Content: msg.Content, ToolCalls: msg.ToolCalls}, nil
}

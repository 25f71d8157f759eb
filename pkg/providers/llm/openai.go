package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/httpclient"
)

const OpenAIName = "openai"

type openAIBackend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAI(cfg *config.Config, breaker *httpclient.Breaker) *Provider {
	return &Provider{
		name:        OpenAIName,
		displayName: "OpenAI",
		apiKey:      cfg.OpenAIAPIKey,
		breaker:     breaker,
		backend: &openAIBackend{
			baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
			apiKey:  cfg.OpenAIAPIKey,
			model:   cfg.OpenAIModel,
			client:  httpclient.New(cfg.AITimeout),
		},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (b *openAIBackend) generate(ctx context.Context, req generateRequest) (string, error) {
	payload := chatRequest{
		Model:          b.model,
		MaxTokens:      maxOutputTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	if req.Media == nil {
		payload.Messages = []chatMessage{
			{Role: "system", Content: req.Prompt},
			{Role: "user", Content: textInstruction + req.Text},
		}
	} else {
		dataURI := fmt.Sprintf("data:%s;base64,%s", req.Media.MIME, base64.StdEncoding.EncodeToString(req.Media.Data))
		payload.Messages = []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	var resp chatResponse
	if err := httpclient.DoJSON(b.client, httpReq, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

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

const GeminiName = "gemini"

type geminiBackend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGemini(cfg *config.Config, breaker *httpclient.Breaker) *Provider {
	return &Provider{
		name:        GeminiName,
		displayName: "Gemini",
		apiKey:      cfg.GeminiAPIKey,
		breaker:     breaker,
		backend: &geminiBackend{
			baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
			apiKey:  cfg.GeminiAPIKey,
			model:   cfg.GeminiModel,
			client:  httpclient.New(cfg.AITimeout),
		},
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig map[string]interface{} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (b *geminiBackend) generate(ctx context.Context, req generateRequest) (string, error) {
	var parts []geminiPart
	if req.Media == nil {
		parts = []geminiPart{{Text: req.Prompt + "\n\n" + textInstruction + req.Text}}
	} else {
		parts = []geminiPart{
			{Text: req.Prompt},
			{InlineData: &geminiInlineData{
				MimeType: req.Media.MIME,
				Data:     base64.StdEncoding.EncodeToString(req.Media.Data),
			}},
		}
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: map[string]interface{}{
			"maxOutputTokens":  maxOutputTokens,
			"responseMimeType": "application/json",
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	// key goes in a header, never the URL
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", b.baseURL, b.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", b.apiKey)

	var resp geminiResponse
	if err := httpclient.DoJSON(b.client, httpReq, &resp); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	// No candidates reads as an empty reply, which Process marks PARTIAL.
	return text.String(), nil
}

package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/httpclient"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/observability/metrics"
)

const (
	textConfidence   = 0.8
	visionConfidence = 0.75
	maxOutputTokens  = 2000
)

// Media is an inline document attached to a vision request.
type Media struct {
	MIME string
	Data []byte
}

type generateRequest struct {
	Prompt string
	Text   string
	Media  *Media
}

// backend performs one model call and returns the raw model text.
type backend interface {
	generate(ctx context.Context, req generateRequest) (string, error)
}

// Provider is a vision/text model used as the last resort of a chain.
type Provider struct {
	name        string
	displayName string
	apiKey      string
	backend     backend
	breaker     *httpclient.Breaker
}

// FallbackName is the provider configured for the AI fallback slot.
// Anything other than gemini selects openai.
func FallbackName(cfg *config.Config) string {
	if cfg.AIFallbackProvider == GeminiName {
		return GeminiName
	}
	return OpenAIName
}

// NewFallback returns the provider selected to fill the AI fallback slot.
func NewFallback(cfg *config.Config, breaker *httpclient.Breaker) *Provider {
	if FallbackName(cfg) == GeminiName {
		return NewGemini(cfg, breaker)
	}
	return NewOpenAI(cfg, breaker)
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *Provider) Process(ctx context.Context, in extraction.Input) (result extraction.ProcessingResult) {
	start := time.Now()
	defer func() {
		metrics.ObserveProviderCall(p.name, string(result.Status), time.Since(start))
	}()

	if !p.IsAvailable() {
		return extraction.Failed(p.name, extraction.NewError(extraction.ErrConfiguration, p.name, p.displayName+" API key not configured", nil), nil)
	}

	req := generateRequest{}
	confidence := textConfidence
	if in.IsText() {
		req.Prompt = Prompt(in.Options.DocumentType, false)
		req.Text = in.Text
	} else {
		if len(in.Data) == 0 {
			return extraction.Failed(p.name, extraction.NewError(extraction.ErrInvalidInput, p.name, "No content provided", nil), nil)
		}
		req.Prompt = Prompt(in.Options.DocumentType, true)
		req.Media = &Media{MIME: extraction.DetectFileType(in.Data, in.ContentType).MIME, Data: in.Data}
		confidence = visionConfidence
	}

	log := logger.Log.WithFields(logrus.Fields{
		"provider":      p.name,
		"document_type": in.Options.DocumentType,
		"vision":        req.Media != nil,
	})
	log.Info("requesting model extraction")

	var text string
	err := p.breaker.Do(func() error {
		var err error
		text, err = p.backend.generate(ctx, req)
		return err
	})
	if err != nil {
		perr := httpclient.ProviderError(p.name, err)
		log.WithError(perr).WithField("code", perr.Code).Error("model request failed")
		return extraction.Failed(p.name, perr, nil)
	}

	parsed, err := extraction.ExtractJSON(text)
	if err != nil {
		log.WithField("response", httpclient.Truncate(text, 200)).Warn("model response was not JSON")
		return unparseable(p.name, text)
	}

	log.Info("model extraction complete")
	return extraction.Succeeded(p.name, extraction.Single(extraction.FromMap(parsed)), parsed, confidence)
}

// unparseable keeps the pipeline honest about a model reply it could not
// read: an empty record marked PARTIAL at zero confidence.
func unparseable(provider, text string) extraction.ProcessingResult {
	return extraction.ProcessingResult{
		Status:       extraction.StatusPartial,
		Data:         extraction.Single(extraction.Empty()),
		RawResponse:  map[string]interface{}{"text": httpclient.Truncate(strings.TrimSpace(text), 2000)},
		ErrorMessage: extraction.NewError(extraction.ErrParse, provider, "Could not parse JSON from model response", nil).Error(),
		ServiceUsed:  provider,
	}
}

func (p *Provider) BreakerState() string { return p.breaker.State() }

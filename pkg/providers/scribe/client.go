package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/httpclient"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/observability/metrics"
)

const (
	Name       = "eka_scribe"
	confidence = 0.85

	defaultModelType = "pro"
	defaultTxnID     = "healthbridge"
)

// Provider turns clinical transcripts into EMR templates through the
// scribe service.
type Provider struct {
	url     string
	client  *http.Client
	breaker *httpclient.Breaker
}

func New(cfg *config.Config, breaker *httpclient.Breaker) *Provider {
	return &Provider{
		url:     strings.TrimSpace(cfg.ScribeURL),
		client:  httpclient.New(cfg.ScribeTimeout),
		breaker: breaker,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) IsAvailable() bool {
	return p.url != ""
}

type templateRequest struct {
	Transcript   string `json:"transcript"`
	ModelType    string `json:"model_type"`
	TxnID        string `json:"txn_id"`
	ResponseType string `json:"response_type"`
}

func (p *Provider) Process(ctx context.Context, in extraction.Input) (result extraction.ProcessingResult) {
	start := time.Now()
	defer func() {
		metrics.ObserveProviderCall(Name, string(result.Status), time.Since(start))
	}()

	if !p.IsAvailable() {
		return extraction.Failed(Name, extraction.NewError(extraction.ErrConfiguration, Name, "EkaScribe URL not configured", nil), nil)
	}
	transcript := strings.TrimSpace(in.AsText())
	if transcript == "" {
		return extraction.Failed(Name, extraction.NewError(extraction.ErrInvalidInput, Name, "Content must be a non-empty string", nil), nil)
	}

	log := logger.Log.WithField("provider", Name)
	log.WithField("chars", len(transcript)).Info("processing transcript")

	body, err := json.Marshal(templateRequest{
		Transcript:   transcript,
		ModelType:    defaultModelType,
		TxnID:        defaultTxnID,
		ResponseType: "json",
	})
	if err != nil {
		return extraction.Failed(Name, fmt.Errorf("encode request: %w", err), nil)
	}

	var raw map[string]interface{}
	err = p.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return httpclient.DoJSON(p.client, req, &raw)
	})
	if err != nil {
		perr := httpclient.ProviderError(Name, err)
		log.WithError(perr).WithField("code", perr.Code).Error("scribe request failed")
		return extraction.Failed(Name, perr, nil)
	}

	log.Info("transcript processed")
	return extraction.Succeeded(Name, extraction.Single(parseTemplate(raw)), raw, confidence)
}

// WantsText marks the provider as text-only; the pipeline decodes binary
// uploads before calling it.
func (p *Provider) WantsText() bool { return true }

func (p *Provider) BreakerState() string { return p.breaker.State() }

package labreport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
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
	Name       = "eka_lab_report"
	confidence = 0.9
)

// Provider uploads lab reports and prescriptions for parsing, then polls
// until the parsed result is ready.
type Provider struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	rules        *Rules
	client       *http.Client
	breaker      *httpclient.Breaker
}

// New builds the provider. A nil rules table uses DefaultRules.
func New(cfg *config.Config, rules *Rules, breaker *httpclient.Breaker) *Provider {
	if rules == nil {
		rules = DefaultRules()
	}
	maxPolls := cfg.LabMaxPollAttempts
	if maxPolls <= 0 {
		maxPolls = 80
	}
	return &Provider{
		apiKey:       cfg.LabAPIKey,
		baseURL:      strings.TrimRight(cfg.LabBaseURL, "/"),
		pollInterval: cfg.LabPollInterval,
		maxPolls:     maxPolls,
		rules:        rules,
		client:       httpclient.New(cfg.LabTimeout),
		breaker:      breaker,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *Provider) Process(ctx context.Context, in extraction.Input) (result extraction.ProcessingResult) {
	start := time.Now()
	defer func() {
		metrics.ObserveProviderCall(Name, string(result.Status), time.Since(start))
	}()

	if !p.IsAvailable() {
		return extraction.Failed(Name, extraction.NewError(extraction.ErrConfiguration, Name, "Eka API key not configured", nil), nil)
	}
	content := fileBytes(in)
	if len(content) == 0 {
		return extraction.Failed(Name, extraction.NewError(extraction.ErrInvalidInput, Name, "No content provided", nil), nil)
	}

	log := logger.Log.WithField("provider", Name)

	documentID, err := p.upload(ctx, content, in.ContentType)
	if err != nil {
		perr := httpclient.ProviderError(Name, err)
		log.WithError(perr).Error("lab report upload failed")
		return extraction.Failed(Name, perr, nil)
	}
	log = log.WithField("document_id", documentID)
	log.Info("lab report uploaded")

	raw, err := p.poll(ctx, documentID, log)
	if err != nil {
		perr := httpclient.ProviderError(Name, err)
		log.WithError(perr).WithField("code", perr.Code).Error("lab report polling failed")
		return extraction.Failed(Name, perr, raw)
	}

	var rules *Rules
	if in.Options.InferDiseasesEnabled() {
		rules = p.rules
	}
	rec := parseResult(raw, rules)
	log.WithFields(logrus.Fields{
		"diseases":    len(rec.Diseases),
		"lab_results": len(rec.LabResults),
		"medications": len(rec.Medications),
	}).Info("lab report parsed")

	return extraction.Succeeded(Name, extraction.Single(rec), raw, confidence)
}

// fileBytes returns the upload payload. Text input is taken as base64 when
// it decodes cleanly.
func fileBytes(in extraction.Input) []byte {
	if !in.IsText() {
		return in.Data
	}
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.Text)); err == nil {
		return decoded
	}
	return []byte(in.Text)
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
}

func (p *Provider) upload(ctx context.Context, content []byte, contentType string) (string, error) {
	ft := extraction.DetectFileType(content, contentType)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="document.%s"`, ft.Ext))
	header.Set("Content-Type", ft.MIME)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := p.baseURL + "/mr/api/v2/docs?" + url.Values{"task": {"smart"}}.Encode()

	var resp uploadResponse
	err = p.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return httpclient.DoJSON(p.client, req, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.DocumentID == "" {
		return "", extraction.NewError(extraction.ErrParse, Name, "Failed to upload file - no request_id returned", nil)
	}
	return resp.DocumentID, nil
}

// poll waits for a terminal status. It returns the last payload alongside a
// failure so callers can keep it for diagnosis.
func (p *Provider) poll(ctx context.Context, documentID string, log *logrus.Entry) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/mr/api/v1/docs/%s/result", p.baseURL, url.PathEscape(documentID))

	for attempt := 1; attempt <= p.maxPolls; attempt++ {
		data, status, err := p.fetchResult(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		switch status {
		case "completed":
			return data, nil
		case "error", "deleted":
			log.WithField("status", status).Error("lab report processing ended")
			return data, extraction.NewError(extraction.ErrHTTPStatus, Name,
				fmt.Sprintf("Document processing ended with status %q", status), nil)
		case "queued", "inprogress":
		default:
			if len(extraction.Map(data["data"])) > 0 {
				return data, nil
			}
		}

		log.WithFields(logrus.Fields{"attempt": attempt, "status": status}).Debug("lab report not ready")
		if err := sleep(ctx, p.pollInterval); err != nil {
			return nil, err
		}
	}
	return nil, extraction.NewError(extraction.ErrTimeout, Name, "Timed out waiting for processing result", nil)
}

// fetchResult performs one poll. 202 and 404 mean not ready and are
// reported as queued.
func (p *Provider) fetchResult(ctx context.Context, endpoint string) (map[string]interface{}, string, error) {
	var (
		data    map[string]interface{}
		pending bool
	)
	err := p.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return extraction.NewError(extraction.ErrParse, Name, "Invalid result payload", err)
			}
			return nil
		case http.StatusAccepted, http.StatusNotFound:
			pending = true
			return nil
		default:
			return httpclient.NewStatusError(resp)
		}
	})
	if err != nil {
		return nil, "", err
	}
	if pending {
		return nil, "queued", nil
	}
	return data, strings.ToLower(extraction.String(data["status"])), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) BreakerState() string { return p.breaker.State() }

package pipeline

import (
	"github.com/healthbridge/platform/pkg/classifier"
	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/httpclient"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/providers/labreport"
	"github.com/healthbridge/platform/pkg/providers/llm"
	"github.com/healthbridge/platform/pkg/providers/scribe"
	"github.com/healthbridge/platform/pkg/providers/structured"
)

// NewFromConfig builds the providers and the fallback table. Missing
// credentials are not an error here; such providers report unavailable.
func NewFromConfig(cfg *config.Config) *Pipeline {
	breakers := httpclient.BreakerConfigFrom(cfg)

	rules, err := labreport.LoadRules(cfg.LabRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to built-in lab inference rules")
		rules = labreport.DefaultRules()
	}

	var (
		lab    = labreport.New(cfg, rules, httpclient.NewBreaker(labreport.Name, breakers))
		notes  = scribe.New(cfg, httpclient.NewBreaker(scribe.Name, breakers))
		parser = structured.New()
		ai     = llm.NewFallback(cfg, httpclient.NewBreaker(llm.FallbackName(cfg), breakers))
	)

	return New(Chains(lab, notes, parser, ai))
}

// Chains assembles the fallback table from the four provider slots.
func Chains(lab, notes, parser, ai extraction.Provider) map[classifier.DocumentType][]extraction.Provider {
	return map[classifier.DocumentType][]extraction.Provider{
		classifier.LabReport:      {lab, ai},
		classifier.Prescription:   {ai},
		classifier.ClinicalText:   {notes, ai},
		classifier.StructuredData: {parser},
		classifier.Unknown:        {ai},
	}
}

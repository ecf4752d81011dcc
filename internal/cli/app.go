package cli

import (
	"context"
	"fmt"

	"github.com/falachefe/consultant/internal/business"
	"github.com/falachefe/consultant/internal/classifier"
	"github.com/falachefe/consultant/internal/client"
	"github.com/falachefe/consultant/internal/config"
	"github.com/falachefe/consultant/internal/delivery"
	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/pipeline"
	"github.com/falachefe/consultant/internal/specialist"
	"github.com/falachefe/consultant/internal/tools"
)

// deliveryAttempts is the total number of UAZAPI send tries per message.
const deliveryAttempts = 2

func newClassifier(ctx context.Context) (*classifier.Classifier, error) {
	m, err := getModel(ctx)
	if err != nil {
		return nil, err
	}
	return classifier.New(m, classifier.Options{
		Timeout: cfg.ClassifyTimeout,
		Retries: cfg.ClassifyRetries,
	}, config.Component(logger, "classifier"), collector), nil
}

// buildPipeline wires every collaborator from the loaded config.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	cls, err := newClassifier(ctx)
	if err != nil {
		return nil, err
	}
	m, err := getModel(ctx)
	if err != nil {
		return nil, err
	}

	finance := business.NewFinance(client.New(cfg.FinancialAPIURL, client.WithTimeout(cfg.EnrichTimeout)))
	var supabase *client.Client
	if cfg.SupabaseURL != "" {
		supabase = business.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.EnrichTimeout)
	}
	lookup := business.NewLookup(supabase, finance, config.Component(logger, "business"), collector)

	toolReg := tools.RegisterAll(&tools.Dependencies{
		Finance: finance,
		Memory:  store,
		Logger:  config.Component(logger, "tools"),
	})
	catalog, err := specialist.LoadCatalog(cfg.SpecialistCatalog)
	if err != nil {
		return nil, fmt.Errorf("load specialists: %w", err)
	}
	specialists, err := specialist.NewRegistry(catalog, m, toolReg, config.Component(logger, "specialist"), collector)
	if err != nil {
		return nil, fmt.Errorf("build specialists: %w", err)
	}

	gateway := delivery.NewUAZAPI(cfg.UAZAPIBaseURL, cfg.UAZAPIToken, delivery.Options{
		Timeout:  cfg.DeliveryTimeout,
		Attempts: deliveryAttempts,
		Logger:   config.Component(logger, "delivery"),
		Metrics:  collector,
	})

	return pipeline.New(pipeline.Deps{
		Classifier:  cls,
		Enricher:    lookup,
		Specialists: specialists,
		Memory:      store,
		Gateway:     gateway,
	}, pipeline.Options{
		EnrichTimeout:     cfg.EnrichTimeout,
		SpecialistTimeout: cfg.SpecialistTimeout,
		MemoryTimeout:     cfg.MemoryTimeout,
		DeliveryTimeout:   cfg.DeliveryTimeout,
		DefaultSpecialist: models.ParseSpecialistID(cfg.DefaultSpecialist),
		InlineSources:     cfg.InlineSources,
		Logger:            config.Component(logger, "pipeline"),
		Metrics:           collector,
	}), nil
}

package cli

import (
	"context"

	"github.com/roundslab/rounds/engine/infra/monitoring"
	"github.com/roundslab/rounds/engine/llm"
	"github.com/roundslab/rounds/engine/orchestrator"
	"github.com/roundslab/rounds/engine/pattern"
	"github.com/roundslab/rounds/engine/schema"
	"github.com/roundslab/rounds/engine/streaming"
	"github.com/roundslab/rounds/engine/tool"
	"github.com/roundslab/rounds/engine/tool/builtin"
	"github.com/roundslab/rounds/engine/transcript"
	"github.com/roundslab/rounds/pkg/config"
	"github.com/roundslab/rounds/pkg/logger"
)

// engine bundles the wired turn pipeline plus the collaborators the
// commands poke at directly.
type engine struct {
	orch       *orchestrator.Orchestrator
	catalog    *tool.Catalog
	publisher  *streaming.MemoryPublisher
	store      transcript.Store
	monitoring *monitoring.Service
	client     *llm.Client
	patterns   *pattern.Table
}

// buildCatalog registers the bundled tools over a fresh schema registry.
// The tools command uses it standalone, without the rest of the pipeline.
func buildCatalog(cfg *config.Config) (*tool.Catalog, error) {
	registry, err := schema.NewRegistry()
	if err != nil {
		return nil, err
	}
	catalog := tool.NewCatalog(registry)
	if err := builtin.Register(catalog, builtin.Config{
		LiteratureBaseURL: cfg.Tools.LiteratureBaseURL,
	}); err != nil {
		return nil, err
	}
	return catalog, nil
}

// buildEngine wires the full turn pipeline from configuration. Callers own
// the returned engine and must Close it.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	catalog, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := tool.NewRenderer()
	if err != nil {
		return nil, err
	}
	gateway := tool.NewGateway(catalog, renderer, cfg.Limits.ToolTimeout)

	patterns, err := pattern.NewTable(ctx, pattern.Config{Paths: cfg.Patterns.Paths})
	if err != nil {
		return nil, err
	}
	if cfg.Patterns.Watch {
		if err := patterns.Watch(ctx); err != nil {
			return nil, err
		}
	}

	client, err := llm.NewClient(ctx, cfg, catalog.Registry())
	if err != nil {
		return nil, err
	}
	store, err := transcript.NewStore(ctx, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	monSvc, err := monitoring.NewService(ctx, &cfg.Monitoring)
	if err != nil {
		client.Close()
		store.Close(ctx)
		return nil, err
	}
	metrics, err := monitoring.NewMetrics(monSvc.Meter())
	if err != nil {
		client.Close()
		store.Close(ctx)
		return nil, err
	}

	publisher := streaming.NewMemoryPublisher(nil)
	orch, err := orchestrator.New(cfg, orchestrator.Deps{
		Client:    client,
		Catalog:   catalog,
		Gateway:   gateway,
		Patterns:  patterns,
		Publisher: publisher,
		Store:     store,
		Metrics:   metrics,
	})
	if err != nil {
		client.Close()
		store.Close(ctx)
		return nil, err
	}
	return &engine{
		orch:       orch,
		catalog:    catalog,
		publisher:  publisher,
		store:      store,
		monitoring: monSvc,
		client:     client,
		patterns:   patterns,
	}, nil
}

func (e *engine) Close(ctx context.Context) {
	log := logger.FromContext(ctx)
	if err := e.client.Close(); err != nil {
		log.Warn("failed to close generation client", "error", err)
	}
	if err := e.store.Close(ctx); err != nil {
		log.Warn("failed to close transcript store", "error", err)
	}
	if err := e.monitoring.Shutdown(ctx); err != nil {
		log.Warn("failed to shut down monitoring", "error", err)
	}
}

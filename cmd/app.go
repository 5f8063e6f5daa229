package cmd

import (
	"context"
	"fmt"

	"order-analyst/agent"
	"order-analyst/config"
	"order-analyst/database"
	"order-analyst/engine"
	"order-analyst/llmclient"
	"order-analyst/metrics"
	"order-analyst/orchestrator"
	"order-analyst/plan"
	"order-analyst/progress"
	"order-analyst/rag"
	"order-analyst/table"
	"order-analyst/tools"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    database.Store
	model    llmclient.Model
	judge    llmclient.Model
	embedder *rag.CachedEmbedder
	index    *rag.Index
	engine   engine.Engine
	analyst  *agent.Analyst
	planner  *plan.Validator
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.metrics = metrics.New(a.registry)

	store, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })

	if a.model, err = llmclient.NewModel(ctx, cfg.MainEndpoint(), cfg, a.metrics, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.judge, err = llmclient.NewModel(ctx, cfg.JudgeEndpoint(), cfg, a.metrics, logger); err != nil {
		a.Close()
		return nil, err
	}
	embedder, err := llmclient.NewEmbedder(cfg.EmbeddingEndpoint(), cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.embedder, err = rag.NewCachedEmbedder(embedder, store, cfg.EmbeddingCacheSize, cfg.EmbeddingModel, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// initAssistant prepares the query engine and documentation index used by
// the orchestrator's tools.
func (a *app) initAssistant(ctx context.Context) error {
	docs, err := rag.LoadDocumentation(a.cfg.DocumentationPath)
	if err != nil {
		return err
	}
	if a.index, err = rag.NewIndex(ctx, docs, a.embedder.Embed, a.logger); err != nil {
		return err
	}

	switch a.cfg.QueryEngine {
	case engine.LanguageSQL, "sqlite":
		a.engine = engine.NewSQLite(a.logger)
	default:
		py, err := engine.NewPythonExecutor(ctx, a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("start python executor: %w", err)
		}
		a.engine = py
		a.closers = append(a.closers, py.Close)
	}

	var lookup tools.Tool
	if a.cfg.QueryVariant == agent.VariantRAG {
		lookup = tools.NewDocsTool(a.index, a.cfg.RAGResults)
	}
	a.analyst, err = agent.NewAnalyst(a.model, a.engine, lookup, agent.Options{
		Variant:           a.cfg.QueryVariant,
		MaxIterations:     a.cfg.MaxIterations,
		MaxExecutionTime:  a.cfg.MaxExecutionTime,
		ConsecutiveErrors: a.cfg.ConsecutiveErrors,
		MaxTokens:         a.cfg.MaxTokens,
	}, a.logger)
	if err != nil {
		return err
	}
	a.planner = plan.NewValidator(a.model, docs.Describe(), a.cfg.MaxTokens, a.logger)
	return nil
}

// newOrchestrator builds an assistant over its own table store. sink and
// memory may be nil.
func (a *app) newOrchestrator(store *table.Store, memory *orchestrator.Memory, sink *progress.Sink) *orchestrator.Orchestrator {
	var registry *tools.Registry
	registry, err := tools.NewRegistry(
		plan.NewTool(a.planner, func() []tools.Descriptor { return registry.Descriptors() }),
		tools.NewDataLoader(a.cfg.DataPath, store, a.logger),
		tools.NewQueryTool(store, a.analyst, a.logger),
		tools.NewChartRenderer(a.cfg.StaticDir, a.cfg.StaticBaseURL, a.logger),
	)
	if err != nil {
		// tool names are fixed, so a duplicate is a programming error
		panic(err)
	}

	policy := orchestrator.NewReActPolicy(a.model, registry.Descriptors(), a.cfg.MaxTokens)
	return orchestrator.New(registry, policy, a.model, sink, memory, orchestrator.Options{
		StartDate:        a.cfg.DataStartDate,
		EndDate:          a.cfg.DataEndDate,
		MaxIterations:    a.cfg.MaxIterations,
		MaxExecutionTime: a.cfg.MaxExecutionTime,
		LogsDir:          a.cfg.LogsDir,
	}, a.metrics, a.logger)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

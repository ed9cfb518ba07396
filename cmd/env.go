package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/config"
	"github.com/deadonfilm/deadonfilm/internal/enrich"
	"github.com/deadonfilm/deadonfilm/internal/fusion"
	"github.com/deadonfilm/deadonfilm/internal/source"
	"github.com/deadonfilm/deadonfilm/internal/store"
	anthropicpkg "github.com/deadonfilm/deadonfilm/pkg/anthropic"
	"github.com/deadonfilm/deadonfilm/pkg/jina"
	"github.com/deadonfilm/deadonfilm/pkg/perplexity"
)

// enrichEnv holds the initialized store, source registry, and pipeline
// needed by the enrich/serve commands.
type enrichEnv struct {
	Store    store.Store
	Registry *source.Registry
	Pipeline *enrich.Pipeline
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "deadonfilm.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRegistry builds the source registry from configured API clients,
// applying any per-source overrides from the sources file. Sources whose
// credentials are missing are skipped, not errors: a run with only the
// free tier is still a valid run.
func initRegistry() (*source.Registry, error) {
	settings, err := config.LoadSourceSettings(cfg.Sources.File)
	if err != nil {
		return nil, err
	}
	forSource := func(name string) source.Settings {
		return settings[name]
	}

	reg := source.NewRegistry()

	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	register := func(name string, build func(source.Settings) source.Source) {
		s := forSource(name)
		if s.Disabled {
			zap.L().Info("source disabled by config", zap.String("source", name))
			return
		}
		reg.Register(build(s))
	}

	register("wikipedia", func(s source.Settings) source.Source { return source.NewWikipedia(jinaClient, s) })
	register("obituaries", func(s source.Settings) source.Source { return source.NewObituaries(jinaClient, s) })
	register("findagrave", func(s source.Settings) source.Source { return source.NewFindAGrave(jinaClient, s) })

	if cfg.Perplexity.Key != "" {
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		register("perplexity", func(s source.Settings) source.Source { return source.NewPerplexity(perplexityClient, s) })
	} else {
		zap.L().Debug("DEADONFILM_PERPLEXITY_KEY not set, paid tier disabled")
	}

	if cfg.Anthropic.Key != "" {
		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		register("claude", func(s source.Settings) source.Source {
			return source.NewClaude(anthropicClient, cfg.Anthropic.Model, s)
		})
	} else {
		zap.L().Debug("DEADONFILM_ANTHROPIC_KEY not set, ai tier disabled")
	}

	if len(reg.Names()) == 0 {
		return nil, eris.New("no sources available: check credentials and sources file")
	}
	return reg, nil
}

// initEnrich sets up the store, source registry, and pipeline. Callers
// should defer env.Close().
func initEnrich(ctx context.Context) (*enrichEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := initRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var synth *fusion.Synthesizer
	if cfg.Anthropic.Key != "" {
		synth = fusion.NewSynthesizer(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.CleanupModel)
	} else {
		zap.L().Warn("anthropic not configured, cleanup pass unavailable")
	}

	return &enrichEnv{
		Store:    st,
		Registry: reg,
		Pipeline: enrich.New(st, reg, synth),
	}, nil
}

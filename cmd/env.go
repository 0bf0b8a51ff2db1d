package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/directory"
	"github.com/truthlens/provider-directory/internal/extract"
	"github.com/truthlens/provider-directory/internal/gateway"
	"github.com/truthlens/provider-directory/internal/ocr"
	"github.com/truthlens/provider-directory/internal/resolve"
	"github.com/truthlens/provider-directory/internal/risk"
	"github.com/truthlens/provider-directory/internal/source"
	"github.com/truthlens/provider-directory/internal/store"
	anthropicpkg "github.com/truthlens/provider-directory/pkg/anthropic"
	"github.com/truthlens/provider-directory/pkg/gemini"
)

// appEnv holds the wired store and service used by the commands.
type appEnv struct {
	Store   store.Store
	Service *directory.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "truthlens.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres store requires database_url (TRUTHLENS_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initModel() (gateway.TextModel, error) {
	switch cfg.Gateway.Provider {
	case "gemini", "":
		if cfg.Gateway.GeminiKey == "" {
			return nil, eris.New("gemini gateway requires gemini_api_key (TRUTHLENS_GATEWAY_GEMINI_API_KEY)")
		}
		return gemini.NewClient(cfg.Gateway.GeminiKey,
			gemini.WithBaseURL(cfg.Gateway.GeminiBaseURL),
			gemini.WithModel(cfg.Gateway.GeminiModel),
		), nil
	case "anthropic":
		if cfg.Gateway.AnthropicKey == "" {
			return nil, eris.New("anthropic gateway requires anthropic_api_key (TRUTHLENS_GATEWAY_ANTHROPIC_API_KEY)")
		}
		return anthropicpkg.NewClient(cfg.Gateway.AnthropicKey,
			anthropicpkg.WithModel(cfg.Gateway.AnthropicModel),
		), nil
	default:
		return nil, eris.Errorf("unsupported gateway provider: %s", cfg.Gateway.Provider)
	}
}

// initEnv sets up the store, the model gateway, OCR, the candidate
// sources, and the directory service. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	textModel, err := initModel()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	gw := gateway.New(textModel, gateway.Config{
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		RetryBaseDelay: cfg.Gateway.RetryBaseDelay,
		RequestsPerSec: cfg.Gateway.RequestsPerSec,
	})

	ocrExtractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := source.NewRegistry()
	if len(cfg.Sources.Static) > 0 {
		entries := make([]source.StaticEntry, len(cfg.Sources.Static))
		for i, sc := range cfg.Sources.Static {
			entries[i] = source.StaticEntry{Field: sc.Field, Value: sc.Value, Reliability: sc.Reliability}
		}
		if err := registry.Register(source.NewStatic("static", entries)); err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("static candidate source enabled", zap.Int("entries", len(entries)))
	}

	svc := directory.New(directory.Config{
		Store:     st,
		OCR:       ocrExtractor,
		Extractor: extract.New(gw),
		Resolver:  resolve.New(gw),
		Scorer:    risk.New(gw),
		Sources:   registry,
		BatchSize: cfg.Refresh.BatchSize,
	})

	return &appEnv{Store: st, Service: svc}, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/clerk"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/memory"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/rediscache"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/sqlstore"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/upstream"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/config"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

// components holds the pieces shared by start, import and tools.
type components struct {
	store    catalog.ToolStore
	cache    *rediscache.DocumentCache
	specs    *service.SpecLoader
	registry *service.ToolRegistry
	upstream *upstream.Client

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// buildComponents opens the catalog store and the optional shared cache
// and assembles the registry and upstream client on top of them.
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	store, closeStore, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	c.store = store
	if closeStore != nil {
		c.closers = append(c.closers, closeStore)
	}
	logger.Info("catalog store ready", "driver", cfg.Database.Driver)

	specOpts := []service.SpecLoaderOption{
		service.WithSpecCacheTTL(config.MustDuration(cfg.Registry.OpenAPICacheTTL)),
		service.WithSpecLogger(logger),
	}
	if cfg.Cache.Enabled() {
		cache, err := rediscache.New(ctx, rediscache.Options{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("connect document cache: %w", err)
		}
		c.cache = cache
		c.closers = append(c.closers, cache.Close)
		specOpts = append(specOpts, service.WithSharedDocumentCache(cache))
		logger.Info("shared document cache enabled", "addr", cfg.Cache.RedisAddr)
	}
	c.specs = service.NewSpecLoader(specOpts...)

	c.registry = service.NewToolRegistry(c.store, c.specs,
		service.WithToolCacheTTL(config.MustDuration(cfg.Registry.ToolCacheTTL)),
		service.WithToolAllowlist(cfg.Registry.ToolAllowlist),
		service.WithOperationAllowlist(cfg.Registry.OperationAllowlist),
		service.WithRegistryLogger(logger),
	)

	c.upstream = upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey,
		upstream.WithTimeout(config.MustDuration(cfg.Upstream.Timeout)),
		upstream.WithVerifySSL(cfg.Upstream.VerifySSL),
		upstream.WithServiceName(cfg.Upstream.ServiceName),
	)
	if !cfg.Upstream.VerifySSL {
		logger.Warn("upstream TLS verification disabled", "base_url", cfg.Upstream.BaseURL)
	}
	return c, nil
}

// openStore returns the catalog store for the configured driver and its
// close function, nil for the in-memory store.
func openStore(db config.DatabaseConfig) (catalog.ToolStore, func() error, error) {
	switch db.Driver {
	case config.DriverMemory, "":
		return memory.NewToolStore(), nil, nil
	case config.DriverPostgres, config.DriverSQLite:
		store, err := sqlstore.Open(db.Driver, db.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

// buildVerifier returns the inbound token verifier: the static token
// first, then Clerk JWTs. It returns nil when nothing is configured.
func buildVerifier(cfg *config.Config, logger *slog.Logger) auth.TokenVerifier {
	var chain auth.Chain
	if cfg.Auth.Token != "" || cfg.Auth.TokenHash != "" {
		chain = append(chain, auth.NewStaticTokenVerifier(cfg.Auth.Token, cfg.Auth.TokenHash))
	}
	if cfg.Auth.Clerk.JWKSURL != "" {
		chain = append(chain, clerk.NewVerifier(cfg.Auth.Clerk.JWKSURL,
			clerk.WithIssuer(cfg.Auth.Clerk.Issuer),
			clerk.WithAudience(cfg.Auth.Clerk.Audience),
			clerk.WithCacheTTL(config.MustDuration(cfg.Auth.Clerk.JWKSCacheTTL)),
			clerk.WithLogger(logger),
		))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

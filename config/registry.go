package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recdex"
	"github.com/kailas-cloud/recdex/aggregate"
	"github.com/kailas-cloud/recdex/embed"
	"github.com/kailas-cloud/recdex/engine"
	"github.com/kailas-cloud/recdex/engine/doc"
	"github.com/kailas-cloud/recdex/engine/facet"
	"github.com/kailas-cloud/recdex/engine/scan"
	"github.com/kailas-cloud/recdex/engine/substring"
	"github.com/kailas-cloud/recdex/engine/vector"
	"github.com/kailas-cloud/recdex/logger"
	"github.com/kailas-cloud/recdex/store/cachestore"
	"github.com/kailas-cloud/recdex/store/dbstore"
	"github.com/kailas-cloud/recdex/store/docstore"
	"github.com/kailas-cloud/recdex/store/docstore/memdoc"
	"github.com/kailas-cloud/recdex/store/vecstore"
	"github.com/kailas-cloud/recdex/store/vecstore/memvec"
	"github.com/kailas-cloud/recdex/store/vecstore/redisvec"
)

// Deps carries the injected collaborators component construction may
// need. Embedder is optional; vector engines without it accept only
// explicit query vectors.
type Deps struct {
	Logger   *zap.Logger
	Embedder embed.Embedder
}

// BuildStore constructs one store from its declaration. Dispatch is an
// explicit switch over the closed kind set.
func BuildStore(ctx context.Context, cfg StoreConfig, redis RedisConfig, deps Deps) (recdex.Store, error) {
	switch cfg.Kind {
	case "memory":
		return cachestore.New(cachestore.NewMap(), cachestore.WithLogger(deps.Logger)), nil
	case "lru":
		cache, err := cachestore.NewLRU(cfg.Capacity)
		if err != nil {
			return nil, err
		}
		return cachestore.New(cache, cachestore.WithLogger(deps.Logger)), nil
	case "sqlite":
		return dbstore.Open(cfg.Path, dbstore.WithLogger(deps.Logger))
	case "doc":
		return docstore.New(memdoc.New(), docstore.WithLogger(deps.Logger)), nil
	case "vector":
		if len(redis.Addrs) == 0 {
			return vecstore.New(memvec.New()), nil
		}
		client, err := redisvec.New(ctx, redisvec.Config{
			Addrs:    redis.Addrs,
			Username: redis.Username,
			Password: redis.Password,
			DB:       redis.DB,
			Index:    cfg.Index,
			Prefix:   cfg.Prefix,
			Dim:      cfg.Dim,
			Algo:     cfg.Algo,
		})
		if err != nil {
			return nil, err
		}
		return vecstore.New(client), nil
	}
	return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}

// BuildEngine constructs one engine over an already-built store.
func BuildEngine(cfg EngineConfig, store recdex.Store, deps Deps) (engine.Engine, error) {
	switch cfg.Kind {
	case "scan":
		return scan.New(store, scan.WithLogger(deps.Logger)), nil
	case "facet":
		opts := []facet.Option{facet.WithLogger(deps.Logger)}
		if cfg.Inplace {
			opts = append(opts, facet.WithInplace())
		} else if cfg.ShadowPath != "" {
			opts = append(opts, facet.WithShadowPath(cfg.ShadowPath))
		}
		if len(cfg.Columns) > 0 {
			opts = append(opts, facet.WithColumns(cfg.Columns...))
		}
		return facet.New(store, opts...)
	case "substring":
		opts := []substring.Option{
			substring.WithLogger(deps.Logger),
			substring.WithMinLength(cfg.MinLength),
			substring.WithPolicy(substring.Policy(cfg.Policy)),
		}
		if cfg.WholeWord {
			opts = append(opts, substring.WithWholeWord())
		}
		return substring.New(store, cfg.SnapshotPath, opts...), nil
	case "vector":
		opts := []vector.Option{vector.WithLogger(deps.Logger)}
		if deps.Embedder != nil {
			opts = append(opts, vector.WithEmbedder(deps.Embedder))
		}
		if cfg.Inplace {
			opts = append(opts, vector.WithInplace())
		} else {
			opts = append(opts, vector.WithShadowClient(memvec.New()))
		}
		return vector.New(store, opts...)
	case "doc":
		opts := []doc.Option{doc.WithLogger(deps.Logger)}
		if cfg.Inplace {
			opts = append(opts, doc.WithInplace())
		} else {
			opts = append(opts, doc.WithShadowClient(memdoc.New()))
		}
		return doc.New(store, opts...)
	}
	return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
}

// Build assembles every declared store and engine into an aggregator.
// Without an injected logger one is built from the logging settings.
func Build(ctx context.Context, cfg Config, deps Deps) (*aggregate.Aggregator, error) {
	if deps.Logger == nil {
		l, err := logger.New(GetEnv(), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		deps.Logger = l
	}

	stores := make(map[string]recdex.Store, len(cfg.Stores))
	opts := []aggregate.Option{aggregate.WithLogger(deps.Logger)}
	for name, sc := range cfg.Stores {
		s, err := BuildStore(ctx, sc, cfg.Redis, deps)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", name, err)
		}
		stores[name] = s
		opts = append(opts, aggregate.WithStore(name, s))
	}
	for name, ec := range cfg.Engines {
		e, err := BuildEngine(ec, stores[ec.Store], deps)
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", name, err)
		}
		opts = append(opts, aggregate.WithEngine(name, e))
	}
	return aggregate.New(opts...), nil
}

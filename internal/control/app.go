// Package control wires configuration into a running application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/nftscan/internal/core/config"
	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/core/worker"
	"github.com/vietddude/nftscan/internal/indexing/api"
	"github.com/vietddude/nftscan/internal/indexing/health"
	"github.com/vietddude/nftscan/internal/indexing/query"
	"github.com/vietddude/nftscan/internal/indexing/querycache"
	"github.com/vietddude/nftscan/internal/indexing/scanner"
	"github.com/vietddude/nftscan/internal/indexing/throttle"
	"github.com/vietddude/nftscan/internal/indexing/verify"
	"github.com/vietddude/nftscan/internal/infra/chain/evm"
	redisclient "github.com/vietddude/nftscan/internal/infra/redis"
	"github.com/vietddude/nftscan/internal/infra/rpc"
)

const shutdownTimeout = 10 * time.Second

// App is the main application struct that owns every component.
type App struct {
	cfg     *config.AppConfig
	client  *rpc.Client
	cache   *querycache.Cache
	service *query.Service
	pruner  *worker.Pruner
	monitor *health.Monitor
	redis   *redisclient.Client
	log     *slog.Logger
}

// NewApp creates the query pipeline from configuration. No network
// connection is opened until the first query or Run.
func NewApp(cfg *config.AppConfig) (*App, error) {
	chainID := cfg.Chain.ChainID

	// 1. RPC router and client
	router := rpc.NewRouter()
	for _, p := range cfg.Chain.Providers {
		router.AddProvider(string(chainID), rpc.NewHTTPProvider(p.Name, p.URL, p.Timeout))
	}
	client := rpc.NewClient(string(chainID), router)
	client.SetRetryConfig(rpc.RetryConfig{
		MaxAttempts:     cfg.Chain.Retry.MaxAttempts,
		InitialDelay:    cfg.Chain.Retry.InitialDelay,
		MaxDelay:        cfg.Chain.Retry.MaxDelay,
		BackoffMultiple: rpc.DefaultRetryConfig.BackoffMultiple,
	})

	// 2. Chain adapter
	adapter := evm.NewEVMAdapter(chainID, client)
	head := throttle.NewHeadCache(adapter, cfg.Scan.HeadTTL)

	// 3. Pipeline stages
	ranges := newRangeController(cfg.Scan)
	scan := scanner.New(head, adapter, ranges, cfg.Scan.WindowBlocks)

	batcher, err := verify.NewBatcher(cfg.Verify.Mode, adapter, cfg.Contracts.Multicall)
	if err != nil {
		return nil, err
	}
	verifier := verify.New(batcher)

	cacheCfg := querycache.DefaultConfig()
	cacheCfg.StaleTime = cfg.Cache.StaleTime
	cacheCfg.GCTime = cfg.Cache.GCTime
	cacheCfg.MaxEntries = cfg.Cache.MaxEntries
	cacheCfg.Retry.MaxAttempts = cfg.Cache.MaxAttempts
	cacheCfg.Retry.InitialDelay = cfg.Cache.RetryInitialDelay
	cache := querycache.New(cacheCfg)

	service := query.NewService(query.Config{
		Chain:       chainID,
		NFT:         cfg.Contracts.NFT,
		Marketplace: cfg.Contracts.Marketplace,
		DeployBlock: cfg.Contracts.DeployBlock,
	}, scan, verifier, cache)

	if cfg.Contracts.NFT != "" && cfg.Contracts.DeployBlock == 0 {
		slog.Warn("contracts.deploy_block is not set, ownership scans only cover the last window",
			"window", scan.Window(),
		)
	}

	slog.Info("Query pipeline ready",
		"chain", domain.NameOf(chainID),
		"providers", len(cfg.Chain.Providers),
		"verify_mode", batcher.Mode(),
		"window", scan.Window(),
	)

	return &App{
		cfg:     cfg,
		client:  client,
		cache:   cache,
		service: service,
		pruner:  worker.NewPruner("query-cache", cache, cfg.Cache.GCTime),
		monitor: health.NewMonitor(client.ChainID(), client, head, cache),
		log:     slog.Default().With("component", "app"),
	}, nil
}

// newRangeController starts from the default growth policy and applies the
// configured span bounds.
func newRangeController(scan config.ScanConfig) *throttle.RangeController {
	rangeCfg := throttle.DefaultRangeConfig()
	rangeCfg.MaxRange = scan.MaxRange
	rangeCfg.MinRange = scan.MinRange
	return throttle.NewRangeController(rangeCfg)
}

// Service returns the query service.
func (a *App) Service() *query.Service {
	return a.service
}

// Health reports provider status and the chain head.
func (a *App) Health(ctx context.Context) health.Report {
	return a.monitor.CheckHealth(ctx)
}

// Run serves the HTTP API, prunes the cache and follows the invalidation
// channel until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	var publisher api.Publisher
	if a.cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, invalidations stay local", "error", err)
		} else {
			a.redis = client
			publisher = client
		}
	}

	server := api.NewServer(a.service, a.monitor, publisher, a.cfg.Server.Port)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	g.Go(func() error {
		a.pruner.Start(ctx)
		return nil
	})

	if a.redis != nil {
		g.Go(func() error {
			err := a.redis.Subscribe(ctx, func(inv domain.Invalidation) {
				n := a.service.Invalidate(inv, "redis")
				a.log.Debug("Applied invalidation", "address", inv.Address, "kind", inv.Kind, "keys", n)
			})
			if err != nil && ctx.Err() == nil {
				a.log.Warn("Invalidation subscription ended", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases network resources.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.client.Close())
	return errors.Join(errs...)
}

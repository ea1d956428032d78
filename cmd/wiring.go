package main

import (
	"context"
	"log"

	"findixi/internal/caching"
	"findixi/internal/clover"
	"findixi/internal/config"
	"findixi/internal/repositories"
	"findixi/internal/services"
	"findixi/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
)

// components holds everything the commands share.
type components struct {
	pool    *pgxpool.Pool
	cache   caching.CacheService
	orders  services.OrderService
	taxSync *services.TaxSyncService
	sweeper *services.TokenSweeper
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	schema := repositories.NewSchemaAdapter(pool)
	connections := repositories.NewConnectionRepo(pool, schema)
	catalog := repositories.NewCatalogRepo(pool, schema)
	taxes := repositories.NewTaxRepo(pool, schema)
	orders := repositories.NewOrderRepo(pool, schema)

	timeout := cfg.Clover.HTTPTimeout()
	pos := clover.NewClient(cfg.Clover.APIBase, timeout)
	oauth := clover.NewOAuthClient(cfg.Clover.OAuthAPIBase(), cfg.Clover.ClientID, timeout)
	tokens := services.NewTokenManager(connections, oauth)

	c := &components{
		pool:    pool,
		taxSync: services.NewTaxSyncService(connections, catalog, taxes, tokens, pos),
		sweeper: services.NewTokenSweeper(connections, tokens, cfg.Jobs.RefreshWindow(), cfg.Jobs.RefreshPageSize),
	}

	var opts []services.OrderServiceOption
	if cfg.Redis.Addr != "" {
		c.cache = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		opts = append(opts, services.WithStatusCache(c.cache))
	}
	if cfg.Minio.Endpoint != "" {
		store, err := services.NewMinioReceiptStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.ReceiptsBucket)
		if err != nil {
			log.Printf("WARN: [receipts] MinIO disabled: %v", err)
		} else if err := store.EnsureBucketExists(ctx); err != nil {
			log.Printf("WARN: [receipts] bucket %s unavailable, receipts disabled: %v", cfg.Minio.ReceiptsBucket, err)
		} else {
			opts = append(opts, services.WithReceiptStore(store))
		}
	}

	if !cfg.Clover.Configured() {
		log.Printf("WARN: CLOVER_CLIENT_ID/CLOVER_CLIENT_SECRET not set, order submission will fail")
	}
	c.orders = services.NewOrderService(cfg.Clover.Configured(), connections, orders, taxes,
		services.NewCatalogResolver(catalog), tokens,
		services.NewOrderTypeResolver(pos, connections), services.NewRemoteOrderBuilder(pos), opts...)
	return c, nil
}

func (c *components) Close() {
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			log.Printf("WARN: failed to close Redis client: %v", err)
		}
	}
	c.pool.Close()
	log.Println("Database disconnected")
}

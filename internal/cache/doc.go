// Package cache provides the response cache of the ReRide fetch proxy.
//
// Two backends implement the Cache interface:
//
//   - MemoryCache: a bounded, process-local TTL cache. When full, the entry
//     written longest ago is evicted before a new key is inserted. Expired
//     entries are dropped lazily on Get and in bulk by Cleanup.
//   - RedisCache: a distributed cache for deployments running several proxy
//     replicas. Redis owns expiry and eviction.
//
// A miss is reported with ErrCacheMiss and is normal control flow. An entry
// evicted early for capacity is indistinguishable from a miss.
//
// # Example Usage
//
//	c, err := cache.New(cfg.Cache, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	janitor := cache.NewJanitor(c.(cache.Cleaner), cfg.Cache.CleanupInterval.Duration(), logger)
//	janitor.Start(ctx)
//	defer janitor.Stop()
//
//	_ = c.Set(ctx, "GET /api/vehicles", payload, 0)
//	value, err := c.Get(ctx, "GET /api/vehicles")
//
// # Thread Safety
//
// All cache implementations are safe for concurrent use.
package cache

// Package storage opens the adapter.Store selected by configuration.
package storage

import (
	"fmt"
	"strings"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/config"
	"github.com/MeteorsLiu/kvbridge/storage/boltdb"
	"github.com/MeteorsLiu/kvbridge/storage/memory"
	"github.com/MeteorsLiu/kvbridge/storage/redis"
	"go.uber.org/zap"
)

func Open(cfg config.Storage, log *zap.Logger) (adapter.Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("backend", cfg.Backend))

	var (
		store adapter.Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		store = memory.New(memory.WithQuota(cfg.Quota))
	case "bolt":
		store, err = boltdb.NewBoltDB(cfg.Path,
			boltdb.WithBucket(cfg.Bucket),
			boltdb.WithQuota(cfg.Quota),
			boltdb.WithTimeout(cfg.Timeout),
			boltdb.WithLogger(log),
		)
	case "redis":
		store, err = redis.NewRedis(
			redis.WithAddr(cfg.Addr),
			redis.WithDB(cfg.DB),
			redis.WithPassword(cfg.Pass),
			redis.WithHash(cfg.Bucket),
			redis.WithMaxEntries(int(cfg.Quota)),
			redis.WithTimeout(cfg.Timeout),
			redis.WithLogger(log),
		)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Info("storage opened")
	return store, nil
}

// CapabilityOf reports availability through the store's own Available
// method when it has one.
func CapabilityOf(store adapter.Store) adapter.Capability {
	if c, ok := store.(adapter.Capability); ok {
		return c
	}
	return adapter.CapabilityFunc(func() bool {
		return store != nil
	})
}

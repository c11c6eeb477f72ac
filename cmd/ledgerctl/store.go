package main

import (
	"context"
	"fmt"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/store/jsonfile"
	"github.com/ineyio/botledger/store/memory"
	"github.com/ineyio/botledger/store/postgres"
	"github.com/ineyio/botledger/store/redis"
)

// openStore builds the store driver named by cfg.
func openStore(ctx context.Context, cfg botledger.StoreConfig) (botledger.Store, error) {
	switch cfg.Driver {
	case botledger.DriverMemory:
		return memory.New(), nil
	case botledger.DriverJSONFile:
		return jsonfile.Open(cfg.Path)
	case botledger.DriverRedis:
		var opts []redis.Option
		if cfg.KeyPrefix != "" {
			opts = append(opts, redis.WithKeyPrefix(cfg.KeyPrefix))
		}
		return redis.NewFromURL(ctx, cfg.URL, opts...)
	case botledger.DriverPostgres:
		var opts []postgres.Option
		if cfg.TablePrefix != "" {
			opts = append(opts, postgres.WithTablePrefix(cfg.TablePrefix))
		}
		return postgres.NewFromURL(ctx, cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

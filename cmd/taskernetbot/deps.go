package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/quailyquaily/taskernetbot/internal/configutil"
	"github.com/quailyquaily/taskernetbot/internal/inline"
	"github.com/quailyquaily/taskernetbot/internal/logutil"
	"github.com/quailyquaily/taskernetbot/internal/resultcache"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runtimeDeps holds the components shared by every command that answers
// inline queries.
type runtimeDeps struct {
	Logger    *slog.Logger
	Shares    *taskernet.Client
	Store     resultcache.Store
	Presenter *inline.Presenter
	Enricher  *inline.Enricher
}

func (d *runtimeDeps) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.Warn("result_cache_close_error", "error", err.Error())
	}
}

func addTaskernetFlags(cmd *cobra.Command) {
	cmd.Flags().String("taskernet-base-url", "", "Taskernet base URL (default https://taskernet.com/).")
	cmd.Flags().Duration("taskernet-request-timeout", 15*time.Second, "Timeout for one Taskernet request.")
	cmd.Flags().String("format-timezone", "UTC", "IANA timezone used for share dates.")
}

func addCacheFlags(cmd *cobra.Command) {
	cmd.Flags().String("cache-backend", resultcache.BackendMemory, "Result cache backend: memory|lru|sqlite|postgres.")
	cmd.Flags().String("cache-sqlite-path", "", "SQLite file for the sqlite cache backend.")
	cmd.Flags().String("cache-postgres-dsn", "", "Postgres DSN for the postgres cache backend.")
}

// buildRuntime wires logger, Taskernet client, result cache, presenter and
// enricher from flags and viper. store overrides the configured cache.
func buildRuntime(ctx context.Context, cmd *cobra.Command, store resultcache.Store) (*runtimeDeps, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	loc, err := locationFromConfig(configutil.FlagOrViperString(cmd, "format-timezone", "format.timezone"))
	if err != nil {
		return nil, err
	}

	shares := taskernet.New(taskernet.Options{
		BaseURL:   configutil.FlagOrViperString(cmd, "taskernet-base-url", "taskernet.base_url"),
		Timeout:   configutil.FlagOrViperDuration(cmd, "taskernet-request-timeout", "taskernet.request_timeout"),
		RateLimit: viper.GetFloat64("taskernet.rate_limit"),
		RateBurst: viper.GetInt("taskernet.rate_burst"),
		UserAgent: viper.GetString("taskernet.user_agent"),
		Logger:    logger,
	})

	if store == nil {
		store, err = resultcache.Open(ctx, cacheConfigFromFlags(cmd))
		if err != nil {
			return nil, fmt.Errorf("open result cache: %w", err)
		}
	}

	presenter, err := inline.NewPresenter(inline.PresenterOptions{
		Store:    store,
		Location: loc,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	enricher, err := inline.NewEnricher(store, shares, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info("runtime_ready",
		"taskernet", shares.BaseURL(),
		"timezone", loc.String(),
		"cache_backend", fmt.Sprintf("%T", store),
	)
	return &runtimeDeps{
		Logger:    logger,
		Shares:    shares,
		Store:     store,
		Presenter: presenter,
		Enricher:  enricher,
	}, nil
}

func cacheConfigFromFlags(cmd *cobra.Command) resultcache.Config {
	return resultcache.Config{
		Backend:     configutil.FlagOrViperString(cmd, "cache-backend", "cache.backend"),
		LRUSize:     viper.GetInt("cache.lru.size"),
		LRUTTL:      viper.GetDuration("cache.lru.ttl"),
		SQLitePath:  configutil.FlagOrViperString(cmd, "cache-sqlite-path", "cache.sqlite.path"),
		PostgresDSN: configutil.FlagOrViperString(cmd, "cache-postgres-dsn", "cache.postgres.dsn"),
	}
}

func locationFromConfig(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid format.timezone %q: %w", name, err)
	}
	return loc, nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
)

// anonymousTTL bounds how long an idle device's sessions are kept in Redis.
const anonymousTTL = 90 * 24 * time.Hour

// Backends are the storage handles a server runs on.
type Backends struct {
	Store   store.Store
	Devices kv.Store
	Mode    coach.Mode
	closers []func() error
}

func (b *Backends) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenBackends connects to Postgres and Redis when configured. Without a
// database the server runs in offline-dev mode on an in-memory store.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	if cfg.DB.Configured() {
		pg, err := store.OpenPostgres(ctx, cfg.DB.ConnString(), cfg.DB.MaxOpenConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("connected to Postgres")
		b.Store = pg
		b.Mode = coach.ModeOnline
		b.closers = append(b.closers, pg.Close)
	} else {
		logger.Warn("no database configured, using in-memory store in offline-dev mode")
		b.Store = store.NewMemory()
		b.Mode = coach.ModeOfflineDev
	}

	if cfg.Redis.URL != "" {
		r, err := kv.DialRedis(ctx, cfg.Redis.URL, anonymousTTL)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		logger.Info("connected to Redis for anonymous sessions")
		b.Devices = r
		b.closers = append(b.closers, r.Close)
	} else {
		b.Devices = kv.NewMemory()
	}
	return b, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/till/internal/config"
	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/remote/mysql"
	"github.com/hyperengineering/till/internal/remote/postgres"
)

// openRemote connects the configured backend. A failed initial ping is
// logged, not returned: the till must start without the network.
func openRemote(ctx context.Context, cfg config.RemoteConfig) (remote.Store, error) {
	var (
		rs  remote.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverNone, "":
		return remote.Disabled{}, nil
	case config.DriverPostgres:
		rs, err = postgres.New(ctx, cfg.DSN)
	case config.DriverMySQL:
		rs, err = mysql.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s remote: %w", cfg.Driver, err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout))
		defer cancel()
	}
	if err := rs.Ping(ctx); err != nil {
		slog.Warn("remote store unreachable at startup",
			"component", "remote",
			"driver", cfg.Driver,
			"error", err,
		)
	}
	return rs, nil
}

package jobstore

import (
	"context"

	logx "cronbot/pkg/logx"
)

// Open validates cfg and opens the configured driver.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", cfg.NormalizedDriver()))

	switch cfg.NormalizedDriver() {
	case "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(ctx, cfg, log)
	case "redis":
		return openRedis(ctx, cfg, log)
	case "postgres":
		return openPostgres(ctx, cfg, log)
	default:
		return NewMemory(), nil
	}
}

package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronbot/internal/job"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrInvalidConfig = errors.New("invalid store config")
	ErrClosed        = errors.New("store closed")
)

// Store persists the jobs owned by one alias.
type Store interface {
	Put(ctx context.Context, j job.Job) error
	Get(ctx context.Context, id string) (job.Job, error)
	// Delete reports whether the job existed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns jobs in insertion order.
	List(ctx context.Context) ([]job.Job, error)
	Close() error
}

// Config selects and configures a driver.
//
// Only the fields relevant to Driver are read:
//   - file, sqlite: Path
//   - sqlite:       BusyTimeout (0 means driver default)
//   - redis:        Addr, Password, DB, Prefix
//   - postgres:     DSN, Table
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Addr        string
	Password    string
	DB          int
	Prefix      string
	Table       string
	BusyTimeout time.Duration
}

// NormalizedDriver returns the lower-cased driver name, "memory" when empty.
func (c Config) NormalizedDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	switch d {
	case "":
		return "memory"
	case "sqlite3":
		return "sqlite"
	case "postgresql", "pg":
		return "postgres"
	default:
		return d
	}
}

// Validate checks that the fields required by the driver are present.
func (c Config) Validate() error {
	switch c.NormalizedDriver() {
	case "memory":
		return nil
	case "file", "sqlite":
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%w: path is required for %s driver", ErrInvalidConfig, c.NormalizedDriver())
		}
	case "redis":
		if strings.TrimSpace(c.Addr) == "" {
			return fmt.Errorf("%w: addr is required for redis driver", ErrInvalidConfig)
		}
		if c.DB < 0 {
			return fmt.Errorf("%w: redis db must be >= 0", ErrInvalidConfig)
		}
	case "postgres":
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("%w: dsn is required for postgres driver", ErrInvalidConfig)
		}
		if c.Table != "" && !validIdent(c.Table) {
			return fmt.Errorf("%w: invalid table name %q", ErrInvalidConfig, c.Table)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("%w: busy_timeout must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

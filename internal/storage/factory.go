package storage

import (
	"context"
	"fmt"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver string
	DSN    string
}

// Open constructs a Storage based on the given configuration. The sqlite
// driver is the default since a local single-process deployment is the
// common case.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "sqlite"
	}
	switch drv {
	case "memory":
		return NewMemory(), nil

	case "sqlite", "postgres":
		st, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}

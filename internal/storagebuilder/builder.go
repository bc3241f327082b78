package storagebuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/spockmay/bainbridge-now/internal/storage"
	memorystorage "github.com/spockmay/bainbridge-now/internal/storage/memory"
	sqlstorage "github.com/spockmay/bainbridge-now/internal/storage/sql"
)

const (
	TypeMemory = "memory"
	TypeSQL    = "sql"
)

const connectTimeout = 15 * time.Second

type Config struct {
	StorageType string
	Database    sqlstorage.Config
}

// New creates the configured storage and connects it.
func New(config Config) (storage.Storage, error) {
	switch config.StorageType {
	case TypeMemory:
		return memorystorage.New(), nil
	case TypeSQL:
		s := sqlstorage.New(config.Database)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		err := s.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s database %q: %w", config.Database.Driver, target(config.Database), err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %s", config.StorageType)
	}
}

func target(config sqlstorage.Config) string {
	if config.Driver == sqlstorage.DriverPostgres {
		return fmt.Sprintf("%s:%d/%s", config.Host, config.Port, config.Database)
	}
	return config.Path
}

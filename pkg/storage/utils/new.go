// Package utils constructs storage drivers from configuration values.
package utils

import (
	"context"
	"fmt"

	"github.com/lodestarhq/aide/pkg/storage"
	"github.com/lodestarhq/aide/pkg/storage/inmemory"
	"github.com/lodestarhq/aide/pkg/storage/postgres"
	"github.com/lodestarhq/aide/pkg/storage/sqlite"
)

// Driver names accepted in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverInMemory = "inmemory"
)

// NewStoreOpts configures NewStore.
type NewStoreOpts struct {
	// Driver selects the backend: "sqlite" (default), "postgres", or
	// "inmemory".
	Driver string

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string
}

// NewStore constructs the storage driver named by o.Driver.
func NewStore(ctx context.Context, o *NewStoreOpts) (storage.Store, error) {
	if o == nil {
		o = &NewStoreOpts{}
	}

	switch o.Driver {
	case DriverSQLite, "":
		if o.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		return sqlite.NewStore(o.SQLitePath)
	case DriverPostgres:
		if o.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a connection string")
		}
		return postgres.NewStore(ctx, o.PostgresDSN)
	case DriverInMemory:
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", o.Driver)
	}
}

package cli

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doctable/internal/store"
)

// openStore builds the configured schema store. The mongo driver opens
// its own connection; the caller closes the store when done.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.OpenSQLite(cfg.Store.Path)
	case "mongo", "":
		client, err := connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store.NewMongo(client.Database(cfg.Database)), nil
	default:
		return nil, NewExitError(ExitCommandError, "unknown store driver "+cfg.Store.Driver)
	}
}

func connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.Database == "" {
		return nil, NewExitError(ExitCommandError, "config: database is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "connect "+cfg.URI, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, WrapExitError(ExitCommandError, "connect "+cfg.URI, err)
	}
	return client, nil
}

// systemCollection reports whether a collection belongs to the schema
// store rather than user data.
func systemCollection(name string) bool {
	return strings.HasPrefix(name, "_sql") || strings.HasPrefix(name, "system.")
}

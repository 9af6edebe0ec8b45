package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/susu3304/piebot/internal/config"
	"github.com/susu3304/piebot/internal/db"
	"github.com/susu3304/piebot/internal/memstore"
	"github.com/susu3304/piebot/internal/mongostore"
	"github.com/susu3304/piebot/internal/pie"
	"github.com/susu3304/piebot/internal/sqlitestore"
)

const (
	storePostgres = "postgres"
	storeMongo    = "mongo"
	storeSQLite   = "sqlite"
	storeMemory   = "memory"
)

// ledgerStore is a pie.Store plus the lifecycle hooks of its backend.
type ledgerStore struct {
	pie.Store
	kind    string
	migrate func(ctx context.Context) error
	close   func() error
}

func (s *ledgerStore) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *ledgerStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// parseStoreURL picks the backend from the URL scheme. The target is what
// the backend's constructor expects.
func parseStoreURL(raw string) (kind, target string, err error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", "", fmt.Errorf("store URL %q has no scheme", raw)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return storePostgres, raw, nil
	case "mongodb", "mongodb+srv":
		return storeMongo, raw, nil
	case "sqlite":
		if rest == "" {
			return "", "", fmt.Errorf("sqlite store URL needs a file path")
		}
		return storeSQLite, rest, nil
	case "memory":
		return storeMemory, "", nil
	default:
		return "", "", fmt.Errorf("unsupported store scheme %q", scheme)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*ledgerStore, error) {
	kind, target, err := parseStoreURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case storePostgres:
		database, err := db.New(ctx, target)
		if err != nil {
			return nil, err
		}
		return &ledgerStore{Store: database, kind: kind, migrate: database.RunMigrations, close: database.Close}, nil
	case storeMongo:
		store, err := mongostore.Open(ctx, target, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &ledgerStore{
			Store:   store,
			kind:    kind,
			migrate: store.Migrate,
			close:   func() error { return store.Close(context.Background()) },
		}, nil
	case storeSQLite:
		store, err := sqlitestore.Open(target)
		if err != nil {
			return nil, err
		}
		return &ledgerStore{Store: store, kind: kind, close: store.Close}, nil
	default:
		return &ledgerStore{Store: memstore.New(), kind: kind}, nil
	}
}

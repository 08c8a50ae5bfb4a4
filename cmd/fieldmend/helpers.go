package main

import (
	"context"
	"fmt"

	"github.com/fieldmend/fieldmend/internal/config"
	"github.com/fieldmend/fieldmend/internal/service"
	"github.com/fieldmend/fieldmend/internal/storage"
	"github.com/spf13/viper"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath, err := config.DatabasePath(viper.GetString("database.path"))
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

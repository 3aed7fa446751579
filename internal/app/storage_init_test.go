package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitStorageMemory(t *testing.T) {
	cfg := DefaultConfig()
	logger := log.WithField("component", "test")

	storage, err := initStorage(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("initStorage: %v", err)
	}
	defer storage.Close()

	if storage.orders == nil || storage.sagas == nil || storage.timeline == nil {
		t.Error("memory storage must provide all repositories")
	}
	if storage.store != nil {
		t.Error("memory storage must not open a postgres store")
	}
	if err := storage.Close(); err != nil {
		t.Errorf("memory storage Close: %v", err)
	}
}

func TestInitStorageUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "etcd"
	logger := log.WithField("component", "test")

	if _, err := initStorage(context.Background(), cfg, logger); err == nil {
		t.Error("unknown driver must fail")
	}
}

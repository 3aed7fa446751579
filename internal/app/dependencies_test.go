package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNewDependenciesMemory(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer deps.Close()

	if deps.Orders == nil || deps.Sagas == nil || deps.Bus == nil {
		t.Error("dependencies must be fully initialized")
	}
	if deps.Logger == nil {
		t.Error("nil logger must be replaced with a default one")
	}
	if deps.kafkaBus != nil {
		t.Error("kafka bus must not be created without brokers")
	}
}

func TestCreateOrchestratorAndSweeper(t *testing.T) {
	cfg := DefaultConfig()
	logger := log.WithField("component", "test")

	deps, err := NewDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer deps.Close()

	orchestrator := createOrchestrator(deps, cfg)
	if orchestrator == nil {
		t.Fatal("orchestrator is nil")
	}
	if err := orchestrator.Subscribe(deps.Bus); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sweeper := createSweeper(deps, orchestrator, cfg)
	if sweeper == nil {
		t.Fatal("sweeper is nil")
	}
}

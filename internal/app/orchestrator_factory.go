package app

import (
	"github.com/vladislavdragonenkov/fulfillment/internal/service/saga"
)

// createOrchestrator собирает оркестратор саг поверх зависимостей приложения.
func createOrchestrator(deps *Dependencies, cfg Config) *saga.Orchestrator {
	orchestrator := saga.NewOrchestrator(deps.Orders, deps.Sagas, deps.Bus, deps.Logger)
	orchestrator.SetRetention(cfg.SagaRetention)
	orchestrator.SetTimeline(deps.Timeline)
	return orchestrator
}

// createSweeper собирает фоновый обходчик саг: таймауты, повторы
// компенсаций и удаление финализированных записей.
func createSweeper(deps *Dependencies, orchestrator *saga.Orchestrator, cfg Config) *saga.Sweeper {
	return saga.NewSweeper(
		deps.Sagas,
		orchestrator,
		saga.WithSweepLogger(deps.Logger),
		saga.WithSweepInterval(cfg.SweepInterval),
		saga.WithSagaDeadline(cfg.SagaDeadline),
		saga.WithMaxCompensationAttempts(cfg.MaxCompensationAttempts),
	)
}

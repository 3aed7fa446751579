package saga

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	defaultSweepInterval           = 30 * time.Second
	defaultSagaDeadline            = 5 * time.Minute
	defaultMaxCompensationAttempts = 5
)

// SweeperOptions задаёт параметры timeout sweep.
type SweeperOptions struct {
	Logger                  *log.Entry
	Interval                time.Duration
	Deadline                time.Duration
	MaxCompensationAttempts int
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithSweepLogger задаёт logger для sweeper'а.
func WithSweepLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithSweepInterval задаёт период обхода хранилища саг.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithSagaDeadline задаёт дедлайн, после которого сага считается зависшей.
func WithSagaDeadline(deadline time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Deadline = deadline
	}
}

// WithMaxCompensationAttempts ограничивает число повторов компенсации.
func WithMaxCompensationAttempts(attempts int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.MaxCompensationAttempts = attempts
	}
}

// Sweeper — фоновый процесс, периодически обходящий хранилище саг.
// Один и тот же обход делает три вещи: проваливает саги, превысившие
// дедлайн; повторяет компенсацию застрявших в compensating; удаляет
// финализированные саги после retention-окна. Отдельного механизма
// отложенной очистки нет намеренно.
type Sweeper struct {
	sagas        domain.SagaStore
	orchestrator *Orchestrator
	logger       *log.Entry
	interval     time.Duration
	deadline     time.Duration
	maxAttempts  int
}

// NewSweeper создаёт timeout sweeper.
func NewSweeper(sagas domain.SagaStore, orchestrator *Orchestrator, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		Interval:                defaultSweepInterval,
		Deadline:                defaultSagaDeadline,
		MaxCompensationAttempts: defaultMaxCompensationAttempts,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "saga-sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultSagaDeadline
	}
	if opts.MaxCompensationAttempts <= 0 {
		opts.MaxCompensationAttempts = defaultMaxCompensationAttempts
	}

	return &Sweeper{
		sagas:        sagas,
		orchestrator: orchestrator,
		logger:       logger,
		interval:     opts.Interval,
		deadline:     opts.Deadline,
		maxAttempts:  opts.MaxCompensationAttempts,
	}
}

// Run запускает периодический обход до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(log.Fields{
		"interval": s.interval,
		"deadline": s.deadline,
	}).Info("saga sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("saga sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один обход хранилища. Обход линейный и работает
// по снимку: конкурентные мутации store обработчиками событий безопасны,
// актуальность статуса перепроверяется под lock'ом саги.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	sagas, err := s.sagas.ListActive()
	if err != nil {
		s.logger.WithError(err).Warn("failed to list sagas")
		return
	}

	now := time.Now().UTC()
	for _, saga := range sagas {
		if ctx.Err() != nil {
			return
		}

		switch {
		case saga.Status.IsTerminal() || saga.Status == domain.SagaStatusFailed:
			s.expire(saga, now)
		case saga.Status == domain.SagaStatusCompensating:
			s.retryCompensation(ctx, saga)
		default:
			s.timeout(ctx, saga, now)
		}
	}
}

// expire удаляет финализированную сагу после retention-окна. Удаление
// выполняется под lock'ом саги с перечитыванием записи: снимок ListActive
// мог устареть, а Delete вне lock'а снял бы мьютекс из-под обработчика.
func (s *Sweeper) expire(saga domain.SagaRecord, now time.Time) {
	if saga.ExpiresAt == nil || now.Before(*saga.ExpiresAt) {
		return
	}
	deleted := false
	err := s.sagas.WithLock(saga.ID, func() error {
		current, err := s.sagas.Get(saga.ID)
		if err != nil {
			return nil
		}
		if !current.Status.IsTerminal() && current.Status != domain.SagaStatusFailed {
			return nil
		}
		if current.ExpiresAt == nil || now.Before(*current.ExpiresAt) {
			return nil
		}
		if err := s.sagas.Delete(saga.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("saga_id", saga.ID).Warn("failed to delete expired saga")
		return
	}
	if deleted {
		s.logger.WithFields(log.Fields{
			"saga_id": saga.ID,
			"status":  saga.Status,
		}).Debug("expired saga removed")
	}
}

// retryCompensation повторяет откат с ограничением попыток; частота
// повторов равна интервалу обхода. После исчерпания попыток сага
// остаётся compensating и ждёт ручного replay оператором.
func (s *Sweeper) retryCompensation(ctx context.Context, saga domain.SagaRecord) {
	if saga.CompensationAttempts >= s.maxAttempts {
		s.logger.WithFields(log.Fields{
			"saga_id":  saga.ID,
			"order_id": saga.OrderID,
			"attempts": saga.CompensationAttempts,
			"error":    saga.Error,
		}).Error("compensation attempts exhausted, operator intervention required")
		return
	}
	if err := s.orchestrator.RetryCompensation(ctx, saga.ID); err != nil {
		s.logger.WithError(err).WithField("saga_id", saga.ID).Warn("compensation retry errored")
	}
}

// timeout проваливает сагу, живущую дольше дедлайна.
func (s *Sweeper) timeout(ctx context.Context, saga domain.SagaRecord, now time.Time) {
	elapsed := now.Sub(saga.StartedAt)
	if elapsed <= s.deadline {
		return
	}
	reason := fmt.Sprintf("saga timed out after %s", elapsed.Round(time.Second))
	if err := s.orchestrator.HandleSagaFailure(ctx, saga.ID, StageTimeout, reason); err != nil {
		s.logger.WithError(err).WithField("saga_id", saga.ID).Warn("timeout failure handling errored")
	}
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type sagaStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSagaStore создаёт PostgreSQL-реализацию SagaStore.
//
// Блокировки per-saga живут в памяти процесса: оркестратор
// предполагает единственный экземпляр сервиса на топологию.
func NewSagaStore(store *Store) domain.SagaStore {
	return &sagaStore{
		db:    store.DB(),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *sagaStore) Get(id string) (domain.SagaRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		rec                        domain.SagaRecord
		status                     string
		reservationID, paymentID   sql.NullString
		sagaErr, compensationGiven sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, customer_id, status, reservation_id, payment_id,
		       started_at, completed_at, error, compensation_reason,
		       compensation_attempts, expires_at
		FROM sagas
		WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.OrderID, &rec.CustomerID, &status, &reservationID, &paymentID,
		&rec.StartedAt, &rec.CompletedAt, &sagaErr, &compensationGiven,
		&rec.CompensationAttempts, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SagaRecord{}, domain.ErrSagaNotFound
		}
		return domain.SagaRecord{}, fmt.Errorf("select saga: %w", err)
	}

	rec.Status = domain.SagaStatus(status)
	rec.ReservationID = reservationID.String
	rec.PaymentID = paymentID.String
	rec.Error = sagaErr.String
	rec.CompensationReason = compensationGiven.String

	return rec, nil
}

func (s *sagaStore) Put(rec domain.SagaRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sagas (
			id, order_id, customer_id, status, reservation_id, payment_id,
			started_at, completed_at, error, compensation_reason,
			compensation_attempts, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reservation_id = EXCLUDED.reservation_id,
			payment_id = EXCLUDED.payment_id,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error,
			compensation_reason = EXCLUDED.compensation_reason,
			compensation_attempts = EXCLUDED.compensation_attempts,
			expires_at = EXCLUDED.expires_at
	`,
		rec.ID, rec.OrderID, rec.CustomerID, string(rec.Status),
		nullableString(rec.ReservationID), nullableString(rec.PaymentID),
		rec.StartedAt, rec.CompletedAt, nullableString(rec.Error),
		nullableString(rec.CompensationReason), rec.CompensationAttempts, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert saga: %w", err)
	}
	return nil
}

func (s *sagaStore) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sagas WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete saga: %w", err)
	}

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()

	return nil
}

func (s *sagaStore) ListActive() ([]domain.SagaRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, customer_id, status, reservation_id, payment_id,
		       started_at, completed_at, error, compensation_reason,
		       compensation_attempts, expires_at
		FROM sagas
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("select sagas: %w", err)
	}
	defer rows.Close()

	var records []domain.SagaRecord
	for rows.Next() {
		var (
			rec                      domain.SagaRecord
			status                   string
			reservationID, paymentID sql.NullString
			sagaErr, compReason      sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.OrderID, &rec.CustomerID, &status, &reservationID, &paymentID,
			&rec.StartedAt, &rec.CompletedAt, &sagaErr, &compReason,
			&rec.CompensationAttempts, &rec.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}
		rec.Status = domain.SagaStatus(status)
		rec.ReservationID = reservationID.String
		rec.PaymentID = paymentID.String
		rec.Error = sagaErr.String
		rec.CompensationReason = compReason.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sagas: %w", err)
	}
	return records, nil
}

func (s *sagaStore) WithLock(sagaID string, fn func() error) error {
	lock := s.lockFor(sagaID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *sagaStore) lockFor(sagaID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sagaID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sagaID] = lock
	}
	return lock
}

var _ domain.SagaStore = (*sagaStore)(nil)

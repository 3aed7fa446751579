package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestSagaStorePutGet(t *testing.T) {
	store := NewSagaStore()
	saga := domain.NewSagaRecord("order-1", "customer-1")

	if err := store.Put(saga); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(saga.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OrderID != "order-1" || got.Status != domain.SagaStatusStarted {
		t.Errorf("got = %+v", got)
	}
}

func TestSagaStoreGetMissing(t *testing.T) {
	store := NewSagaStore()
	if _, err := store.Get("saga-missing"); !errors.Is(err, domain.ErrSagaNotFound) {
		t.Errorf("err = %v, want ErrSagaNotFound", err)
	}
}

func TestSagaStoreDelete(t *testing.T) {
	store := NewSagaStore()
	saga := domain.NewSagaRecord("order-1", "customer-1")
	if err := store.Put(saga); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Delete(saga.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(saga.ID); !errors.Is(err, domain.ErrSagaNotFound) {
		t.Errorf("err = %v after delete", err)
	}
	// Удаление несуществующей саги не является ошибкой.
	if err := store.Delete(saga.ID); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestSagaStoreListActive(t *testing.T) {
	store := NewSagaStore()
	for _, orderID := range []string{"order-1", "order-2", "order-3"} {
		if err := store.Put(domain.NewSagaRecord(orderID, "customer-1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	sagas, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(sagas) != 3 {
		t.Errorf("listed %d sagas, want 3", len(sagas))
	}
}

func TestSagaStoreWithLockSerializes(t *testing.T) {
	store := NewSagaStore()
	saga := domain.NewSagaRecord("order-1", "customer-1")
	if err := store.Put(saga); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Конкурентные инкременты под per-key lock'ом не должны теряться.
	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithLock(saga.ID, func() error {
				current, err := store.Get(saga.ID)
				if err != nil {
					return err
				}
				current.CompensationAttempts++
				return store.Put(current)
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(saga.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CompensationAttempts != workers {
		t.Errorf("attempts = %d, want %d", got.CompensationAttempts, workers)
	}
}

func TestSagaStoreWithLockPropagatesError(t *testing.T) {
	store := NewSagaStore()
	wantErr := errors.New("fn failed")
	if err := store.WithLock("saga-x", func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func testOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          id,
		CustomerID:  "customer-1",
		Status:      domain.OrderStatusPending,
		Currency:    "USD",
		AmountMinor: 1000,
		Items: []domain.OrderItem{{
			ProductID:  "prod-1",
			Qty:        2,
			PriceMinor: 500,
			Currency:   "USD",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	repo := NewOrderRepository()

	if err := repo.Create(testOrder("order-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CustomerID != "customer-1" || len(got.Items) != 1 {
		t.Errorf("got = %+v", got)
	}
}

func TestOrderRepositoryCreateDuplicate(t *testing.T) {
	repo := NewOrderRepository()

	if err := repo.Create(testOrder("order-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(testOrder("order-1")); !errors.Is(err, domain.ErrOrderExists) {
		t.Errorf("err = %v, want ErrOrderExists", err)
	}
}

func TestOrderRepositoryGetMissing(t *testing.T) {
	repo := NewOrderRepository()
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderRepositorySaveIncrementsVersion(t *testing.T) {
	repo := NewOrderRepository()
	if err := repo.Create(testOrder("order-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	order, _ := repo.Get("order-1")
	order.Status = domain.OrderStatusInventoryReserved
	if err := repo.Save(order); err != nil {
		t.Fatalf("Save: %v", err)
	}

	updated, _ := repo.Get("order-1")
	if updated.Version != 1 {
		t.Errorf("version = %d, want 1", updated.Version)
	}
	if updated.Status != domain.OrderStatusInventoryReserved {
		t.Errorf("status = %s", updated.Status)
	}
}

func TestOrderRepositorySaveVersionConflict(t *testing.T) {
	repo := NewOrderRepository()
	if err := repo.Create(testOrder("order-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, _ := repo.Get("order-1")
	second, _ := repo.Get("order-1")

	if err := repo.Save(first); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	// Вторая копия несёт устаревшую версию.
	if err := repo.Save(second); !domain.IsVersionConflict(err) {
		t.Errorf("err = %v, want version conflict", err)
	}
}

func TestOrderRepositorySaveMissing(t *testing.T) {
	repo := NewOrderRepository()
	if err := repo.Save(testOrder("ghost")); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderRepositoryGetReturnsCopy(t *testing.T) {
	repo := NewOrderRepository()
	if err := repo.Create(testOrder("order-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := repo.Get("order-1")
	got.Items[0].Qty = 99

	fresh, _ := repo.Get("order-1")
	if fresh.Items[0].Qty != 2 {
		t.Error("mutating a fetched order leaked into the repository")
	}
}

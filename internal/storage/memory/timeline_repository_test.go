package memory

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestTimelineRepositoryAppendAndList(t *testing.T) {
	repo := NewTimelineRepository()
	base := time.Now().UTC()

	events := []domain.Event{
		{Type: domain.EventOrderCreated, OrderID: "order-1", To: domain.OrderStatusPending, Occurred: base},
		{Type: domain.EventOrderStatusChanged, OrderID: "order-1", From: domain.OrderStatusPending, To: domain.OrderStatusInventoryReserved, Occurred: base.Add(time.Second)},
		{Type: domain.EventOrderCreated, OrderID: "order-2", To: domain.OrderStatusPending, Occurred: base},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := repo.List("order-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != domain.EventOrderCreated || got[1].Type != domain.EventOrderStatusChanged {
		t.Errorf("got = %+v", got)
	}
}

func TestTimelineRepositoryListSortsByOccurred(t *testing.T) {
	repo := NewTimelineRepository()
	base := time.Now().UTC()

	// Добавляем события в обратном хронологическом порядке.
	late := domain.Event{Type: domain.EventOrderCompleted, OrderID: "order-1", Occurred: base.Add(time.Minute)}
	early := domain.Event{Type: domain.EventOrderCreated, OrderID: "order-1", Occurred: base}
	if err := repo.Append(late); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := repo.Append(early); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := repo.List("order-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got[0].Type != domain.EventOrderCreated || got[1].Type != domain.EventOrderCompleted {
		t.Errorf("events out of order: %+v", got)
	}
}

func TestTimelineRepositoryListUnknownOrder(t *testing.T) {
	repo := NewTimelineRepository()

	got, err := repo.List("missing")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestTimelineRepositoryListReturnsCopy(t *testing.T) {
	repo := NewTimelineRepository()
	if err := repo.Append(domain.Event{Type: domain.EventOrderCreated, OrderID: "order-1", Occurred: time.Now().UTC()}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	first, _ := repo.List("order-1")
	first[0].Type = "mutated"

	second, _ := repo.List("order-1")
	if second[0].Type != domain.EventOrderCreated {
		t.Error("List must return an isolated copy")
	}
}

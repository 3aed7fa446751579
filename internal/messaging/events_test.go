package messaging

import (
	"errors"
	"testing"
)

func TestDecodeInventoryReserved(t *testing.T) {
	event := NewInventoryReserved("order-1", "res-1", []Item{{ProductID: "p-1", Qty: 1, PriceMinor: 100, Currency: "USD"}})
	payload, err := Encode(event)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeInventoryReserved(payload)
	if err != nil {
		t.Fatalf("DecodeInventoryReserved: %v", err)
	}
	if decoded.OrderID != "order-1" || decoded.ReservationID != "res-1" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.EventID == "" {
		t.Error("event id missing")
	}
}

func TestDecodeInventoryReservedValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"garbage", "not json", nil},
		{"missing order id", `{"reservation_id":"res-1"}`, ErrOrderIDMissing},
		{"missing reservation id", `{"order_id":"order-1"}`, ErrReservationIDMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInventoryReserved([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodePaymentSucceededValidation(t *testing.T) {
	if _, err := DecodePaymentSucceeded([]byte(`{"order_id":"order-1"}`)); !errors.Is(err, ErrPaymentIDMissing) {
		t.Errorf("err = %v, want ErrPaymentIDMissing", err)
	}
	if _, err := DecodePaymentSucceeded([]byte(`{"payment_id":"pay-1"}`)); !errors.Is(err, ErrOrderIDMissing) {
		t.Errorf("err = %v, want ErrOrderIDMissing", err)
	}

	event := NewPaymentSucceeded("order-1", "pay-1", Amount{ValueMinor: 100, Currency: "USD"})
	payload, _ := Encode(event)
	decoded, err := DecodePaymentSucceeded(payload)
	if err != nil {
		t.Fatalf("DecodePaymentSucceeded: %v", err)
	}
	if decoded.Amount.ValueMinor != 100 || decoded.Amount.Currency != "USD" {
		t.Errorf("amount = %+v", decoded.Amount)
	}
}

func TestDecodePaymentFailed(t *testing.T) {
	if _, err := DecodePaymentFailed([]byte(`{"reason":"declined"}`)); !errors.Is(err, ErrOrderIDMissing) {
		t.Errorf("err = %v, want ErrOrderIDMissing", err)
	}

	payload, _ := Encode(NewPaymentFailed("order-1", "insufficient funds"))
	decoded, err := DecodePaymentFailed(payload)
	if err != nil {
		t.Fatalf("DecodePaymentFailed: %v", err)
	}
	if decoded.Reason != "insufficient funds" {
		t.Errorf("reason = %q", decoded.Reason)
	}
}

func TestDecodeInventoryOutOfStock(t *testing.T) {
	if _, err := DecodeInventoryOutOfStock([]byte(`{}`)); !errors.Is(err, ErrOrderIDMissing) {
		t.Errorf("err = %v, want ErrOrderIDMissing", err)
	}

	event := NewInventoryOutOfStock("order-1", []UnavailableItem{{ProductID: "p-1", RequestedQty: 5, AvailableQty: 2}})
	payload, _ := Encode(event)
	decoded, err := DecodeInventoryOutOfStock(payload)
	if err != nil {
		t.Fatalf("DecodeInventoryOutOfStock: %v", err)
	}
	if len(decoded.UnavailableItems) != 1 || decoded.UnavailableItems[0].AvailableQty != 2 {
		t.Errorf("unavailable = %+v", decoded.UnavailableItems)
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	a := NewOrderCancelled("order-1", "reason")
	b := NewOrderCancelled("order-1", "reason")
	if a.EventID == b.EventID {
		t.Error("event ids must be unique across instances")
	}
}

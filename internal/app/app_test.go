package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubBusStarter struct {
	err error
}

func (s *stubBusStarter) Start(context.Context) error { return s.err }

func TestRunBusSuccessfulStartIsNotAnError(t *testing.T) {
	errCh := make(chan error, 1)

	runBus(context.Background(), &stubBusStarter{}, errCh)

	select {
	case err := <-errCh:
		t.Fatalf("successful bus start must not be reported as error, got %v", err)
	default:
	}
}

func TestRunBusForwardsStartError(t *testing.T) {
	errCh := make(chan error, 1)
	startErr := errors.New("no brokers available")

	runBus(context.Background(), &stubBusStarter{err: startErr}, errCh)

	select {
	case err := <-errCh:
		if !errors.Is(err, startErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	default:
		t.Fatal("expected start error to be forwarded")
	}
}

func TestRunStaysUpUntilContextCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = fmt.Sprintf(":%d", findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	select {
	case err := <-done:
		t.Fatalf("Run exited prematurely: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

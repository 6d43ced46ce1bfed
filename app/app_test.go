package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeServer struct {
	startErr error
	stopped  chan struct{}
}

func (f *fakeServer) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	close(f.stopped)
	return nil
}

func (f *fakeServer) Stop(context.Context) error { return nil }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsOnCancel(t *testing.T) {
	a := &fakeServer{stopped: make(chan struct{})}
	b := &fakeServer{stopped: make(chan struct{})}
	var order []string
	app := New("test", quiet(),
		WithServer(a, b),
		WithCleanup(func() { order = append(order, "first") }),
		WithCleanup(func() { order = append(order, "second") }),
	)
	if app.Servers() != 2 {
		t.Fatalf("expected 2 servers, got %d", app.Servers())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}
	for _, s := range []*fakeServer{a, b} {
		select {
		case <-s.stopped:
		default:
			t.Errorf("server was not stopped")
		}
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("cleanups must run in reverse order, got %v", order)
	}
}

func TestRunCancelsOthersOnError(t *testing.T) {
	boom := errors.New("listen failed")
	healthy := &fakeServer{stopped: make(chan struct{})}
	app := New("test", quiet(), WithServer(&fakeServer{startErr: boom}, healthy))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("expected %v, got %v", boom, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after a server failure")
	}
	select {
	case <-healthy.stopped:
	default:
		t.Errorf("healthy server must be cancelled")
	}
}

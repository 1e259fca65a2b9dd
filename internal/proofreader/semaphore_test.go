package proofreader

import (
	"context"
	"testing"
	"time"
)

func TestSemaphore_Bounds(t *testing.T) {
	sem := newSemaphore(2)
	ctx := context.Background()

	if err := sem.acquire(ctx); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if err := sem.acquire(ctx); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	// The third acquire blocks until a slot frees up.
	done := make(chan error, 1)
	go func() {
		done <- sem.acquire(ctx)
	}()
	select {
	case <-done:
		t.Fatal("third acquire should block while the semaphore is full")
	case <-time.After(10 * time.Millisecond):
	}

	sem.release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("release did not unblock a waiter")
	}
}

func TestSemaphore_CancelledContext(t *testing.T) {
	sem := newSemaphore(1)
	if err := sem.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sem.acquire(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewSemaphore_MinimumCapacity(t *testing.T) {
	sem := newSemaphore(0)
	if cap(sem.ch) != 1 {
		t.Errorf("capacity = %d, want 1", cap(sem.ch))
	}
}

package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/hubwire/hubwire"
)

func TestRegistryAddGetRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := NewConnection(Options{ID: "a"})
	r.Add(c)

	got, err := r.Get("a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != c {
		t.Fatal("Get() returned a different connection")
	}

	r.Remove(c)
	if _, err := r.Get("a"); !errors.Is(err, hubwire.ErrConnectionNotFound) {
		t.Fatalf("Get() after Remove error = %v, want ErrConnectionNotFound", err)
	}
	r.Remove(c) // absent: no-op
}

func TestRegistryDuplicateIDPanics(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Add(NewConnection(Options{ID: "a"}))

	defer func() {
		if recover() == nil {
			t.Fatal("Add() with duplicate id did not panic")
		}
	}()
	r.Add(NewConnection(Options{ID: "a"}))
}

// TestRegistrySnapshotDuringMutation checks snapshot iteration is safe while
// connects and disconnects proceed concurrently.
func TestRegistrySnapshotDuringMutation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for i := 0; i < 16; i++ {
		r.Add(NewConnection(Options{}))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := NewConnection(Options{})
			r.Add(c)
			r.Remove(c)
		}
	}()

	for i := 0; i < 100; i++ {
		for _, c := range r.Snapshot() {
			_ = c.ID()
		}
	}
	close(stop)
	wg.Wait()

	if got := r.Len(); got != 16 {
		t.Errorf("Len() = %d, want 16", got)
	}
}

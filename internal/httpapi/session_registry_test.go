package httpapi

import (
	"testing"
	"time"
)

func TestSessionRegistryAddDone(t *testing.T) {
	sr := NewSessionRegistry()

	if !sr.Add() {
		t.Fatal("Add returned false on a fresh registry")
	}
	if got := sr.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}

	sr.Done()
	if got := sr.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after Done = %d, want 0", got)
	}
}

func TestSessionRegistryDrainingRejectsNew(t *testing.T) {
	sr := NewSessionRegistry()
	sr.StartDraining()

	if sr.Add() {
		t.Error("Add returned true while draining")
	}
	if !sr.IsDraining() {
		t.Error("IsDraining = false after StartDraining")
	}
}

func TestSessionRegistryWaitBlocksUntilDone(t *testing.T) {
	sr := NewSessionRegistry()
	sr.Add()
	sr.StartDraining()

	released := make(chan struct{})
	go func() {
		sr.Wait()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while a session was still active")
	case <-time.After(50 * time.Millisecond):
	}

	sr.Done()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the last session finished")
	}
}

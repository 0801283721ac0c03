package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	k := New()
	const workers = 20

	var counter int
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := k.Lock("escrow-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("Expected counter %d, got %d", workers, counter)
	}
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	k := New()

	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected lock on a different key to proceed, timed out")
	}
}

func TestLockEntryReclaimedAfterRelease(t *testing.T) {
	k := New()

	unlock := k.Lock("transient")
	unlock()

	k.mu.Lock()
	_, held := k.locks["transient"]
	k.mu.Unlock()
	if held {
		t.Error("Expected lock entry removed after last holder released")
	}
}

func TestLockReacquireAfterRelease(t *testing.T) {
	k := New()

	unlock := k.Lock("again")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("again")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reacquire to succeed, timed out")
	}
}

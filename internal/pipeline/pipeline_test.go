package pipeline

import (
	"testing"

	"github.com/vaultstream/vaultstream/internal/videostore"
)

func TestNewDefaultsWorkerCount(t *testing.T) {
	store := videostore.NewMemory()
	o := New(store, nil, nil, Config{Workers: 0})

	if cap(o.sem) != 1 {
		t.Errorf("worker semaphore capacity = %d, want 1 (default)", cap(o.sem))
	}
}

func TestNewHonorsConfiguredWorkerCount(t *testing.T) {
	store := videostore.NewMemory()
	o := New(store, nil, nil, Config{Workers: 4})

	if cap(o.sem) != 4 {
		t.Errorf("worker semaphore capacity = %d, want 4", cap(o.sem))
	}
}

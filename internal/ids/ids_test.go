package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewProducesParseableULIDs(t *testing.T) {
	id := New()
	if _, err := ulid.ParseStrict(id); err != nil {
		t.Fatalf("New() produced invalid ULID %q: %v", id, err)
	}
}

func TestNewIsUniqueUnderConcurrency(t *testing.T) {
	const n = 200
	var (
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New()
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Fatalf("expected %d unique ids, got %d", n, len(ids))
	}
}

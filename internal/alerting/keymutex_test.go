package alerting

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	counter := map[string]*int{"a": new(int), "b": new(int)}
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			*counter[key]++
		}()
	}
	wg.Wait()

	if *counter["a"] != 50 || *counter["b"] != 50 {
		t.Errorf("counts = %d/%d, want 50 each", *counter["a"], *counter["b"])
	}
	if n := km.size(); n != 0 {
		t.Errorf("size() = %d after all unlocks, want 0", n)
	}
}

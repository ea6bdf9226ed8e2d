package mailbox

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/devmesh/backend/internal/models"
)

func pubkey(b byte) models.Pubkey {
	var pk models.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func props(kv ...string) models.Properties {
	p := models.Properties{}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = json.RawMessage(kv[i+1])
	}
	return p
}

func assertBag(t *testing.T, got models.Properties, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("bag size: got %d (%v), want %d", len(got), got, len(want))
	}
	for k, v := range want {
		if string(got[k]) != v {
			t.Errorf("bag[%q]: got %s, want %s", k, got[k], v)
		}
	}
}

func TestEnqueueMergesThenDrainClears(t *testing.T) {
	m := New()
	d := pubkey(1)

	m.Enqueue(d, props("a", "1"))
	m.Enqueue(d, props("b", "2"))

	assertBag(t, m.DrainAndClear(d), map[string]string{"a": "1", "b": "2"})

	second := m.DrainAndClear(d)
	if second == nil {
		t.Fatal("drain of empty mailbox returned nil, want empty map")
	}
	if len(second) != 0 {
		t.Errorf("second drain: got %v, want empty", second)
	}
}

func TestEnqueueLastWriteWins(t *testing.T) {
	m := New()
	d := pubkey(2)

	m.Enqueue(d, props("a", "1"))
	m.Enqueue(d, props("a", "2"))

	assertBag(t, m.DrainAndClear(d), map[string]string{"a": "2"})
}

func TestEnqueueReplacesNestedValueWhole(t *testing.T) {
	m := New()
	d := pubkey(3)

	m.Enqueue(d, props("cfg", `{"x":1,"y":2}`))
	m.Enqueue(d, props("cfg", `{"z":3}`))

	assertBag(t, m.DrainAndClear(d), map[string]string{"cfg": `{"z":3}`})
}

func TestEnqueueCopiesValues(t *testing.T) {
	m := New()
	d := pubkey(4)
	raw := json.RawMessage(`"abc"`)
	m.Enqueue(d, models.Properties{"k": raw})
	raw[1] = 'z'

	assertBag(t, m.DrainAndClear(d), map[string]string{"k": `"abc"`})
}

func TestDevicesAreIsolated(t *testing.T) {
	m := New()
	a, b := pubkey(5), pubkey(6)

	m.Enqueue(a, props("x", "1"))
	m.Enqueue(b, props("y", "2"))

	if got := m.Pending(); got != 2 {
		t.Errorf("Pending: got %d, want 2", got)
	}
	assertBag(t, m.DrainAndClear(a), map[string]string{"x": "1"})
	if got := m.Pending(); got != 1 {
		t.Errorf("Pending after one drain: got %d, want 1", got)
	}
	assertBag(t, m.DrainAndClear(b), map[string]string{"y": "2"})
}

func TestEnqueueEmptyDoesNotCreateBag(t *testing.T) {
	m := New()
	m.Enqueue(pubkey(7), nil)
	if got := m.Pending(); got != 0 {
		t.Errorf("Pending: got %d, want 0", got)
	}
}

func TestConcurrentEnqueueDistinctDevices(t *testing.T) {
	m := NewSharded(4)
	const devices = 16
	const perDevice = 200

	var wg sync.WaitGroup
	for d := 0; d < devices; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			pk := pubkey(byte(d + 10))
			for i := 0; i < perDevice; i++ {
				m.Enqueue(pk, props(fmt.Sprintf("k%d", i), fmt.Sprintf("%d", d)))
			}
		}(d)
	}
	wg.Wait()

	for d := 0; d < devices; d++ {
		bag := m.DrainAndClear(pubkey(byte(d + 10)))
		if len(bag) != perDevice {
			t.Fatalf("device %d: got %d keys, want %d", d, len(bag), perDevice)
		}
		for k, v := range bag {
			if string(v) != fmt.Sprintf("%d", d) {
				t.Fatalf("device %d key %s: value %s leaked from another device", d, k, v)
			}
		}
	}
}

// Every enqueued key must come out of exactly one drain, no matter how the
// drains interleave with the writers.
func TestConcurrentEnqueueAndDrainLosesNothing(t *testing.T) {
	m := New()
	d := pubkey(99)
	const writers = 8
	const perWriter = 500

	var (
		mu      sync.Mutex
		seen    = make(map[string]int)
		writeWG sync.WaitGroup
		done    = make(chan struct{})
		drainWG sync.WaitGroup
	)
	collect := func(bag models.Properties) {
		mu.Lock()
		for k := range bag {
			seen[k]++
		}
		mu.Unlock()
	}

	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		for {
			select {
			case <-done:
				return
			default:
				collect(m.DrainAndClear(d))
			}
		}
	}()

	for w := 0; w < writers; w++ {
		writeWG.Add(1)
		go func(w int) {
			defer writeWG.Done()
			for i := 0; i < perWriter; i++ {
				m.Enqueue(d, props(fmt.Sprintf("w%d-%d", w, i), "true"))
			}
		}(w)
	}
	writeWG.Wait()
	close(done)
	drainWG.Wait()
	collect(m.DrainAndClear(d))

	if len(seen) != writers*perWriter {
		t.Fatalf("drained %d distinct keys, want %d", len(seen), writers*perWriter)
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("key %s drained %d times", k, n)
		}
	}
}

package handle

import (
	"strings"
	"sync"
	"testing"
)

func TestNewProducesValidPrefixedToken(t *testing.T) {
	h := New()
	if h.IsZero() {
		t.Fatal("expected non-zero handle")
	}
	if !strings.HasPrefix(h.String(), "rdesktopd_") {
		t.Fatalf("expected rdesktopd_ prefix, got %q", h)
	}
	if len(h.String()) != len("rdesktopd_")+32 {
		t.Fatalf("unexpected token length %d", len(h.String()))
	}
	if !Valid(h.String()) {
		t.Fatalf("expected generated handle to be valid: %q", h)
	}
}

func TestNewIsUniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 8, 250
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, New().String())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique handles, got %d", workers*perWorker, len(seen))
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"rdesktopd_abc123": true,
		"_x":               true,
		"":                 false,
		"1abc":             false,
		"has-dash":         false,
		"has.dot":          false,
		"space here":       false,
	}
	for input, want := range cases {
		if got := Valid(input); got != want {
			t.Errorf("Valid(%q) = %v, want %v", input, got, want)
		}
	}
	var zero Handle
	if !zero.IsZero() {
		t.Error("expected zero value to report IsZero")
	}
}

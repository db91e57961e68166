package testsupport

import (
	"context"
	"testing"
	"time"

	"rdesktopd/internal/config"
	"rdesktopd/internal/history"
)

// MustOpenHistory opens the negotiation journal for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordNegotiation journals a finished negotiation that started at started
// and took one second.
func RecordNegotiation(t testing.TB, store *history.Store, started time.Time, outcome history.Outcome, desktops int) history.Entry {
	t.Helper()

	entry := history.Entry{
		RunID:      "test-run",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Outcome:    outcome,
		Desktops:   desktops,
	}
	if outcome == history.OutcomeFailed {
		entry.Error = "portal rejected the request"
	}
	id, err := store.Record(context.Background(), entry)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry.ID = id
	return entry
}

package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// mockState tracks health and next flip time for a single service.
type mockState struct {
	healthy      bool
	nextChangeAt time.Time
}

// StartMockHealthServer runs a mock health endpoint whose services flip
// between 200 and 503 every 20-60 seconds.
// Call this in a goroutine before creating PulseCast endpoints.
func StartMockHealthServer(addr string) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		svc := r.URL.Query().Get("svc")
		env := r.URL.Query().Get("env")
		key := svc + "-" + env

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.IntN(150)) * time.Millisecond)

		mu.Lock()
		state, exists := states[key]
		if !exists {
			state = &mockState{healthy: true, nextChangeAt: nextChange()}
			states[key] = state
		}
		if time.Now().After(state.nextChangeAt) {
			state.healthy = !state.healthy
			state.nextChangeAt = nextChange()
			slog.Info("status change", "service", key, "healthy", state.healthy)
		}
		healthy := state.healthy
		mu.Unlock()

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(map[string]any{
			"svc":     svc,
			"env":     env,
			"healthy": healthy,
		}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func nextChange() time.Time {
	return time.Now().Add(time.Duration(20+rand.IntN(41)) * time.Second)
}

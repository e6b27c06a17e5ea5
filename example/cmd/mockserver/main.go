// Standalone mock server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pulsecast serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flag.Parse()

	fmt.Printf("Mock health server starting on %s\n", *addr)
	fmt.Println("Services flip between 200 and 503; /slow?ms=N sleeps N milliseconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		down = make(map[string]time.Time)
		mu   sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/{svc}", func(w http.ResponseWriter, r *http.Request) {
		svc := r.PathValue("svc")

		time.Sleep(time.Duration(50+rand.IntN(150)) * time.Millisecond)

		mu.Lock()
		until, isDown := down[svc]
		switch {
		case isDown && time.Now().After(until):
			delete(down, svc)
			isDown = false
			slog.Info("status change", "service", svc, "healthy", true)
		case !isDown && rand.IntN(10) == 0:
			down[svc] = time.Now().Add(time.Duration(20+rand.IntN(41)) * time.Second)
			isDown = true
			slog.Info("status change", "service", svc, "healthy", false)
		}
		mu.Unlock()

		if isDown {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
		if err != nil || ms < 0 {
			http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
			return
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	})

	if err := http.ListenAndServe(*addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

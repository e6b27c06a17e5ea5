package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsecast"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockHealthServer(":9999")
	time.Sleep(100 * time.Millisecond)

	var endpoints []pulsecast.Endpoint
	for _, svc := range []string{"users", "orders"} {
		for _, env := range []string{"prod", "staging"} {
			ep, err := pulsecast.NewEndpoint(
				svc+"-"+env,
				fmt.Sprintf("%s (%s)", svc, env),
				fmt.Sprintf("http://localhost:9999/health?svc=%s&env=%s", svc, env),
				pulsecast.WithTimeout(2*time.Second),
			)
			if err != nil {
				slog.Error("failed to create endpoint", "error", err)
				os.Exit(1)
			}
			endpoints = append(endpoints, ep)
		}
	}

	github, _ := pulsecast.NewEndpoint("github", "GitHub", "https://api.github.com",
		pulsecast.WithMethod("HEAD"),
	)
	endpoints = append(endpoints, github)

	pc, err := pulsecast.New(
		pulsecast.WithEndpoints(endpoints...),
		pulsecast.WithCheckInterval(5*time.Second),
		pulsecast.WithPerformanceInterval(time.Minute),
		pulsecast.WithPort(8080),
	)
	if err != nil {
		slog.Error("failed to create pulsecast", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  PulseCast demo")
	fmt.Println()
	fmt.Println("  REST:       http://localhost:8080/api/endpoints")
	fmt.Println("  SSE:        curl -N http://localhost:8080/api/sse")
	fmt.Println("  WebSocket:  ws://localhost:8080/ws")
	fmt.Println("  Prometheus: http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// print every endpoint transition as it is published
	sub := pc.Subscribe()
	go func() {
		for e := range sub.Events() {
			if ep, ok := e.Data.(pulsecast.EndpointStatus); ok {
				fmt.Printf("%s  %-18s %-9s %4dms\n",
					e.Timestamp.Format(time.TimeOnly), ep.Name, ep.Status, ep.ResponseTimeMs)
			}
		}
	}()

	if err := pc.Start(ctx); err != nil {
		slog.Error("pulsecast error", "error", err)
		os.Exit(1)
	}
}

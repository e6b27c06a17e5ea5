package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// executeCheckCmd runs the check command and returns captured output.
func executeCheckCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// flags persist on the shared command between runs
	_ = checkCmd.Flags().Set("id", "")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs(append([]string{"check", "--log-level", "error"}, args...))
	err := rootCmd.Execute()

	return buf.String(), err
}

func checkConfig(t *testing.T, healthyURL, failingURL string) string {
	t.Helper()

	return writeConfig(t, fmt.Sprintf(`
endpoints:
  - id: up
    name: Up
    url: %s
  - id: down
    name: Down
    url: %s
`, healthyURL, failingURL))
}

func statusServer(t *testing.T, code int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCheck_Bulk(t *testing.T) {
	up := statusServer(t, http.StatusOK)
	down := statusServer(t, http.StatusServiceUnavailable)
	configPath := checkConfig(t, up.URL, down.URL)

	output, err := executeCheckCmd(t, "-c", configPath)
	if err != nil {
		t.Fatalf("check command error = %v", err)
	}

	var result struct {
		Healthy   int `json:"healthy"`
		Total     int `json:"total"`
		Endpoints []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"endpoints"`
		Metrics struct {
			SystemHealthPercent float64 `json:"system_health_percent"`
		} `json:"metrics"`
		Log struct {
			Message string `json:"message"`
		} `json:"log"`
	}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("output is not JSON: %v\nGot: %s", err, output)
	}

	if result.Healthy != 1 || result.Total != 2 {
		t.Errorf("healthy/total = %d/%d, want 1/2", result.Healthy, result.Total)
	}
	if result.Metrics.SystemHealthPercent != 50 {
		t.Errorf("system health = %v, want 50", result.Metrics.SystemHealthPercent)
	}

	statuses := make(map[string]string)
	for _, ep := range result.Endpoints {
		statuses[ep.ID] = ep.Status
	}
	if statuses["up"] != "healthy" || statuses["down"] != "unhealthy" {
		t.Errorf("statuses = %v", statuses)
	}

	if !strings.HasPrefix(result.Log.Message, "Bulk health check completed: 1/2") {
		t.Errorf("log message = %q", result.Log.Message)
	}
}

func TestRunCheck_SingleEndpoint(t *testing.T) {
	up := statusServer(t, http.StatusOK)
	down := statusServer(t, http.StatusServiceUnavailable)
	configPath := checkConfig(t, up.URL, down.URL)

	output, err := executeCheckCmd(t, "-c", configPath, "--id", "down")
	if err != nil {
		t.Fatalf("check command error = %v", err)
	}

	var ep struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Status      string  `json:"status"`
		LastChecked *string `json:"last_checked"`
	}
	if err := json.Unmarshal([]byte(output), &ep); err != nil {
		t.Fatalf("output is not JSON: %v\nGot: %s", err, output)
	}

	if ep.ID != "down" || ep.Name != "Down" {
		t.Errorf("endpoint = %s (%s), want down (Down)", ep.ID, ep.Name)
	}
	if ep.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", ep.Status)
	}
	if ep.LastChecked == nil {
		t.Error("last_checked should be set after a check")
	}
}

func TestRunCheck_UnknownID(t *testing.T) {
	up := statusServer(t, http.StatusOK)
	configPath := checkConfig(t, up.URL, up.URL+"/other")

	_, err := executeCheckCmd(t, "-c", configPath, "--id", "missing")
	if err == nil {
		t.Fatal("check command expected error for unknown id, got nil")
	}
	if !strings.Contains(err.Error(), "endpoint not found") {
		t.Errorf("error should mention 'endpoint not found', got: %v", err)
	}
}

func TestRunCheck_InvalidLogLevel(t *testing.T) {
	up := statusServer(t, http.StatusOK)
	configPath := checkConfig(t, up.URL, up.URL+"/other")

	_, err := executeCheckCmd(t, "-c", configPath, "--log-level", "loud")
	if err == nil {
		t.Fatal("check command expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "invalid --log-level") {
		t.Errorf("error should mention 'invalid --log-level', got: %v", err)
	}

	// persistent flag is shared with later runs
	_ = rootCmd.PersistentFlags().Set("log-level", "info")
}

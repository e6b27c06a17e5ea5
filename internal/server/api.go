package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/monitor"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a successful response with status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError sends an error message.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"message":   s.title + " is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mon.Endpoints())
}

type registerRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleRegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}

	ep, err := s.mon.Register(req.Name, req.URL)
	if err != nil {
		if errors.Is(err, monitor.ErrInvalidEndpoint) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to register endpoint", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to register endpoint")
		return
	}
	s.logger.Info("endpoint registered", "id", ep.ID, "name", ep.Name, "url", ep.URL)
	s.writeJSON(w, http.StatusCreated, ep)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mon.Logs())
}

type logRequest struct {
	Level    models.Level `json:"level"`
	Message  string       `json:"message"`
	Endpoint string       `json:"endpoint"`
}

func (s *Server) handleAddLog(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Level == "" {
		req.Level = models.LevelInfo
	}

	entry, err := s.mon.AddLog(req.Level, req.Message, req.Endpoint)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mon.Metrics())
}

func (s *Server) handleListPerformance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mon.Performance())
}

func (s *Server) handleRecordPerformance(w http.ResponseWriter, r *http.Request) {
	sample, err := s.mon.RecordPerformance(r.Context())
	if err != nil {
		s.logger.Error("failed to record performance sample", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, sample)
}

type bulkResponse struct {
	Metrics   models.Metrics    `json:"metrics"`
	Endpoints []models.Endpoint `json:"endpoints"`
	Log       *models.LogEntry  `json:"log,omitempty"`
	Healthy   int               `json:"healthy"`
	Total     int               `json:"total"`
}

func (s *Server) handleBulkCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.mon.BulkCheck(r.Context())
	if err != nil {
		s.logger.Error("bulk check failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	eps := res.Endpoints
	if eps == nil {
		eps = []models.Endpoint{}
	}
	s.writeJSON(w, http.StatusOK, bulkResponse{
		Metrics:   res.Metrics,
		Endpoints: eps,
		Log:       res.Log,
		Healthy:   res.Healthy,
		Total:     res.Total,
	})
}

func (s *Server) handleSingleCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ep, err := s.mon.SingleCheck(r.Context(), id)
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "endpoint not found")
	case err != nil:
		s.logger.Error("health check failed", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, ep)
	}
}

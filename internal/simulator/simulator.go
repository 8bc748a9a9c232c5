package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

const maxWindow = 24 * time.Hour

type Config struct {
	Port     int
	Seed     uint64
	Services []ServiceConfig
}

// DefaultServices is the fleet served when none is configured.
func DefaultServices() []ServiceConfig {
	return []ServiceConfig{
		{Name: "api-gateway", RequestsPerMinute: 600, ErrorRate: 0.005, LatencyMs: 35, Pattern: "weekly"},
		{Name: "auth", RequestsPerMinute: 120, ErrorRate: 0.002, LatencyMs: 20, Pattern: "daily"},
		{Name: "checkout", RequestsPerMinute: 60, ErrorRate: 0.01, LatencyMs: 120, Pattern: "daily"},
	}
}

type Simulator struct {
	config     Config
	clock      clock.Clock
	services   map[string]*ServiceSim
	mu         sync.RWMutex
	httpServer *http.Server
}

type Option func(*Simulator)

func WithClock(c clock.Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

func New(cfg Config, opts ...Option) (*Simulator, error) {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}

	s := &Simulator{
		config:   cfg,
		clock:    clock.New(),
		services: make(map[string]*ServiceSim),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, sc := range cfg.Services {
		if _, err := s.AddService(sc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Handler serves the simulator's HTTP routes.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", cors(s.healthHandler))
	mux.HandleFunc("/events", cors(s.eventsHandler))
	mux.HandleFunc("/services", cors(s.servicesHandler))
	mux.HandleFunc("/services/", cors(s.serviceHandler))
	mux.HandleFunc("/incidents", cors(s.incidentHandler))
	mux.HandleFunc("/pattern", cors(s.patternHandler))
	return mux
}

func (s *Simulator) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.WithComponent("simulator").Infof("Simulator listening on %s with %d services", addr, len(s.config.Services))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithComponent("simulator").Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// AddService creates or replaces a simulated service.
func (s *Simulator) AddService(cfg ServiceConfig) (*ServiceSim, error) {
	svc, err := NewServiceSim(cfg, s.config.Seed)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.services[svc.Name()] = svc
	s.mu.Unlock()
	return svc, nil
}

func (s *Simulator) Service(name string) (*ServiceSim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[name]
	return svc, ok
}

func (s *Simulator) RemoveService(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[name]; !ok {
		return false
	}
	delete(s.services, name)
	return true
}

func (s *Simulator) sortedServices() []*ServiceSim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ServiceSim, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Events returns every service's requests in [from, to). Nothing after the
// simulator's current time is produced.
func (s *Simulator) Events(from, to time.Time) []models.RawEvent {
	if now := s.clock.Now(); to.After(now) {
		to = now
	}
	if !from.Before(to) {
		return []models.RawEvent{}
	}

	events := []models.RawEvent{}
	for _, svc := range s.sortedServices() {
		events = append(events, svc.Events(from, to)...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("simulator").WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HTTP Handlers

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "log-simulator",
	})
}

type EventsResponse struct {
	From   time.Time         `json:"from"`
	To     time.Time         `json:"to"`
	Events []models.RawEvent `json:"events"`
}

func (s *Simulator) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be RFC 3339")
		return
	}
	to, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be RFC 3339")
		return
	}
	if to.Before(from) || to.Sub(from) > maxWindow {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("window must be ordered and at most %s", maxWindow))
		return
	}

	from, to = from.UTC(), to.UTC()
	writeJSON(w, http.StatusOK, EventsResponse{From: from, To: to, Events: s.Events(from, to)})
}

func (s *Simulator) servicesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services := s.sortedServices()
		statuses := make([]ServiceStatus, 0, len(services))
		for _, svc := range services {
			statuses = append(statuses, svc.Status())
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"services": statuses,
			"count":    len(statuses),
		})

	case http.MethodPost:
		var req ServiceConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		svc, err := s.AddService(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.WithService(svc.Name()).Info("Created simulated service")
		writeJSON(w, http.StatusCreated, svc.Status())

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Simulator) serviceHandler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/services/"):]
	if name == "" {
		writeError(w, http.StatusBadRequest, "service name required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		svc, ok := s.Service(name)
		if !ok {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		writeJSON(w, http.StatusOK, svc.Status())

	case http.MethodDelete:
		if !s.RemoveService(name) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		logger.WithService(name).Info("Deleted simulated service")
		writeJSON(w, http.StatusOK, map[string]string{"message": "service deleted"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type IncidentRequest struct {
	Service   string       `json:"service"`
	Kind      IncidentKind `json:"kind"`
	Start     *time.Time   `json:"start"`
	Duration  string       `json:"duration"`
	Intensity float64      `json:"intensity"`
	Region    string       `json:"region"`
}

func (s *Simulator) incidentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		now := s.clock.Now()
		removed := 0
		for _, svc := range s.sortedServices() {
			removed += svc.ClearIncidents(now)
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req IncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc, ok := s.Service(req.Service)
	if !ok {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	incident := Incident{
		Kind:      req.Kind,
		Start:     s.clock.Now().UTC(),
		Intensity: req.Intensity,
		Region:    req.Region,
	}
	if req.Start != nil {
		incident.Start = req.Start.UTC()
	}
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		incident.Duration = d
	}

	incident, err := svc.Inject(incident)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.WithService(req.Service).Infof("Injected %s incident: intensity=%.2f, duration=%s",
		incident.Kind, incident.Intensity, incident.Duration)
	writeJSON(w, http.StatusCreated, incident)
}

type PatternRequest struct {
	Service string `json:"service"`
	Pattern string `json:"pattern"` // "steady", "daily", "weekly", "sine_wave"
}

func (s *Simulator) patternHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc, ok := s.Service(req.Service)
	if !ok {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}
	pattern, err := ParsePattern(req.Pattern)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	svc.SetPattern(pattern)

	logger.WithService(req.Service).Infof("Set pattern %s", pattern.Name())
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "pattern set",
		"service": req.Service,
		"pattern": pattern.Name(),
	})
}

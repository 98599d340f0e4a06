// Package status exposes a local, loopback-bound HTTP+WebSocket surface for
// inspecting live panel state without an MQTT client. It is read-only: no
// handler ever calls into the Controller, keeping the command queue as the
// system's single write path into the panel.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"caddx-mqtt-controller/internal/bus"
	"caddx-mqtt-controller/internal/controller"
	"caddx-mqtt-controller/internal/panel"
	"caddx-mqtt-controller/internal/store"
)

// Server is the status HTTP+WebSocket server.
type Server struct {
	ctrl   *controller.Controller
	store  store.Store
	bus    *bus.Bus
	logger *slog.Logger

	mux    *http.ServeMux
	wsHub  *WSHub
	httpSv *http.Server

	startedAt       time.Time
	brokerConnected atomic.Bool

	unsubEvents func()
}

// NewServer builds a status server listening on addr. If addr is empty, the
// caller should not call Start; the server is considered disabled.
func NewServer(ctrl *controller.Controller, st store.Store, b *bus.Bus, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctrl:      ctrl,
		store:     st,
		bus:       b,
		logger:    logger.With("component", "status"),
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	s.wsHub = NewWSHub(s.logger)
	s.routes()

	s.httpSv = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// SetBrokerConnected records the MQTT broker's connection state, reported by
// the bridge from its own connect/disconnect callbacks.
func (s *Server) SetBrokerConnected(connected bool) {
	s.brokerConnected.Store(connected)
}

// Start runs the WebSocket hub, subscribes to the event bus, and begins
// serving HTTP in the background.
func (s *Server) Start() {
	go s.wsHub.Run()
	s.unsubEvents = s.bus.OnAll(func(e bus.Event) {
		s.wsHub.Broadcast(wsMessage{Type: string(e.Type), Payload: e.Payload})
	})
	go func() {
		s.logger.Info("status server starting", "addr", s.httpSv.Addr)
		if err := s.httpSv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status http server", "err", err)
		}
	}()
}

// Stop shuts down the HTTP server and WebSocket hub.
func (s *Server) Stop(ctx context.Context) {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	if err := s.httpSv.Shutdown(ctx); err != nil {
		s.logger.Error("status server shutdown", "err", err)
	}
	s.wsHub.Stop()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/api/partitions", s.handlePartitions)
	s.mux.HandleFunc("/api/zones", s.handleZones)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthzResponse struct {
	PanelSynced     bool  `json:"panel_synced"`
	BrokerConnected bool  `json:"broker_connected"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	synced := s.ctrl.Model().Synced
	resp := healthzResponse{
		PanelSynced:     synced,
		BrokerConnected: s.brokerConnected.Load(),
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	}
	status := http.StatusOK
	if !synced {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type partitionView struct {
	Index    int    `json:"index"`
	UniqueID string `json:"unique_id"`
	State    string `json:"state"`
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	partitions := s.ctrl.Model().Partitions()
	views := make([]partitionView, 0, len(partitions))
	for _, p := range partitions {
		views = append(views, partitionViewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func partitionViewOf(p *panel.Partition) partitionView {
	return partitionView{Index: p.Index, UniqueID: p.UniqueID, State: p.State().String()}
}

type zoneView struct {
	Index    int    `json:"index"`
	UniqueID string `json:"unique_id"`
	Name     string `json:"name"`
	Faulted  bool   `json:"faulted"`
	Bypassed bool   `json:"bypassed"`
	Trouble  bool   `json:"trouble"`
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones := s.ctrl.Model().Zones()
	views := make([]zoneView, 0, len(zones))
	for _, z := range zones {
		views = append(views, zoneViewOf(z))
	}
	writeJSON(w, http.StatusOK, views)
}

func zoneViewOf(z *panel.Zone) zoneView {
	return zoneView{
		Index: z.Index, UniqueID: z.UniqueID, Name: z.Name,
		Faulted: z.Faulted(), Bypassed: z.Bypassed(), Trouble: z.Trouble(),
	}
}

const defaultEventLimit = 50

var errNotANumber = errors.New("not a positive integer")

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}
	events, err := s.store.RecentLogEvents(limit)
	if err != nil {
		s.logger.Error("recent log events", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, errNotANumber
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("status: write json response", "err", err)
	}
}

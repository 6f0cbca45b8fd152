// Package admin exposes the coordination core's state over HTTP for
// operators and scripts. JSON only; the terminal monitor is the richer
// live surface.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"aegis-sim/internal/alerts"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/orchestrator"
)

type Server struct {
	orc *orchestrator.Orchestrator
	mux *http.ServeMux
}

func NewServer(orc *orchestrator.Orchestrator) *Server {
	s := &Server{orc: orc, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/summary", s.handleSummary)
	s.mux.HandleFunc("/vehicles", s.handleVehicles)
	s.mux.HandleFunc("/alerts", s.handleAlerts)
	s.mux.HandleFunc("/alerts/acknowledge", s.handleAcknowledge)
	s.mux.HandleFunc("/emergencies", s.handleEmergencies)
	s.mux.HandleFunc("/commands", s.handleCommands)
	s.mux.HandleFunc("/events", s.handleEvents)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logging.FromContext(ctx).Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "ok",
		"vehicles":         len(s.orc.Roster().Vehicles()),
		"pending_commands": s.orc.PendingCommands(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orc.FleetSummaries())
}

// vehicleRow is the operator view of one roster record.
type vehicleRow struct {
	VehicleID   string    `json:"vehicle_id"`
	FleetID     string    `json:"fleet_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	EmergencyID string    `json:"emergency_id,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	SpeedKMH    float64   `json:"speed_kmh"`
	FuelPercent float64   `json:"fuel_percent"`
	LastSeen    time.Time `json:"last_seen"`
	LastSeq     uint64    `json:"last_seq"`
	MissedSeqs  uint64    `json:"missed_seqs,omitempty"`
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	states := s.orc.Roster().Vehicles()
	rows := make([]vehicleRow, 0, len(states))
	for _, v := range states {
		rows = append(rows, vehicleRow{
			VehicleID:   v.VehicleID,
			FleetID:     v.FleetID,
			Type:        string(v.Type),
			Status:      string(v.Status),
			EmergencyID: v.EmergencyID,
			Lat:         v.Snapshot.Location.Lat,
			Lon:         v.Snapshot.Location.Lon,
			SpeedKMH:    v.Snapshot.SpeedKMH,
			FuelPercent: v.Snapshot.FuelLevelPercent,
			LastSeen:    v.LastSeen,
			LastSeq:     v.LastSeq,
			MissedSeqs:  v.MissedSeqs,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	proc := s.orc.Alerts()
	var records []alerts.Record
	switch {
	case r.URL.Query().Get("history") == "true":
		records = proc.History()
	case r.URL.Query().Get("critical") == "true":
		records = proc.UnacknowledgedCritical()
	default:
		records = proc.Open()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	alertID := r.URL.Query().Get("alert_id")
	if alertID == "" {
		http.Error(w, "alert_id required", http.StatusBadRequest)
		return
	}
	by := r.URL.Query().Get("by")
	if by == "" {
		by = "operator"
	}
	action := r.URL.Query().Get("action")

	err := s.orc.AcknowledgeAlert(r.Context(), alertID, by, action)
	switch {
	case errors.Is(err, alerts.ErrUnknownAlert):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleEmergencies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orc.ActiveEmergencies())
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"pending": s.orc.PendingCommands(),
		"results": s.orc.CommandResults(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orc.Roster().Events())
}

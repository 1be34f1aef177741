// Package api exposes the device adapters and the setup flow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"easyir/internal/device"
	"easyir/internal/setup"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server provides the HTTP API for device control and guided setup.
type Server struct {
	registry *device.Registry
	setup    *setup.Manager
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates an API server listening on the given port.
func NewServer(registry *device.Registry, setupMgr *setup.Manager, logger *zap.Logger, port int) *Server {
	s := &Server{
		registry: registry,
		setup:    setupMgr,
		logger:   logger.Named("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler builds the router. Exposed separately for httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/devices", s.handleListDevices)
		api.Route("/devices/{id}", func(dev chi.Router) {
			dev.Get("/", s.handleGetDevice)
			dev.Post("/hvac_mode", s.handleHVACMode)
			dev.Post("/temperature", s.handleTemperature)
			dev.Post("/fan_mode", s.handleFanMode)
			dev.Post("/power", s.handlePower)
			dev.Post("/volume", s.handleVolume)
			dev.Post("/mute", s.handleMute)
			dev.Post("/playback", s.handlePlayback)
			dev.Post("/source", s.handleSource)
		})

		api.Post("/setup", s.handleSetupStart)
		api.Route("/setup/{sid}", func(flow chi.Router) {
				flow.Get("/entities", s.handleSetupEntities)
			flow.Get("/options", s.handleSetupOptions)
			flow.Post("/select", s.handleSetupSelect)
			flow.Get("/actions", s.handleSetupActions)
			flow.Post("/test", s.handleSetupTest)
			flow.Post("/save", s.handleSetupSave)
		})
	})

	return r
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	adapters := s.registry.List()
	snapshots := make([]device.Snapshot, 0, len(adapters))
	for _, a := range adapters {
		snapshots = append(snapshots, a.Snapshot())
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, adapter.Snapshot())
}

// climate returns the climate adapter for the request, or writes the error.
func (s *Server) climate(w http.ResponseWriter, r *http.Request) (*device.Climate, bool) {
	adapter, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return nil, false
	}
	climate, ok := adapter.(*device.Climate)
	if !ok {
		writeError(w, http.StatusBadRequest, "not a climate device")
		return nil, false
	}
	return climate, true
}

// mediaPlayer returns the media player adapter for the request, or writes
// the error.
func (s *Server) mediaPlayer(w http.ResponseWriter, r *http.Request) (*device.MediaPlayer, bool) {
	adapter, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return nil, false
	}
	player, ok := adapter.(*device.MediaPlayer)
	if !ok {
		writeError(w, http.StatusBadRequest, "not a media player device")
		return nil, false
	}
	return player, true
}

func (s *Server) handleHVACMode(w http.ResponseWriter, r *http.Request) {
	climate, ok := s.climate(w, r)
	if !ok {
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, "mode is required")
		return
	}

	s.finish(w, climate.Snapshot, climate.SetHVACMode(req.Mode))
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	climate, ok := s.climate(w, r)
	if !ok {
		return
	}

	var req struct {
		Temperature *float64 `json:"temperature"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Temperature == nil {
		writeError(w, http.StatusBadRequest, "temperature is required")
		return
	}

	s.finish(w, climate.Snapshot, climate.SetTemperature(*req.Temperature))
}

func (s *Server) handleFanMode(w http.ResponseWriter, r *http.Request) {
	climate, ok := s.climate(w, r)
	if !ok {
		return
	}

	var req struct {
		FanMode string `json:"fan_mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FanMode == "" {
		writeError(w, http.StatusBadRequest, "fan_mode is required")
		return
	}

	s.finish(w, climate.Snapshot, climate.SetFanMode(req.FanMode))
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	player, ok := s.mediaPlayer(w, r)
	if !ok {
		return
	}

	var req struct {
		Power string `json:"power"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Power {
	case "on":
		s.finish(w, player.Snapshot, player.TurnOn())
	case "off":
		s.finish(w, player.Snapshot, player.TurnOff())
	default:
		writeError(w, http.StatusBadRequest, "power must be on or off")
	}
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	player, ok := s.mediaPlayer(w, r)
	if !ok {
		return
	}

	var req struct {
		Direction string `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Direction {
	case "up":
		s.finish(w, player.Snapshot, player.VolumeUp())
	case "down":
		s.finish(w, player.Snapshot, player.VolumeDown())
	default:
		writeError(w, http.StatusBadRequest, "direction must be up or down")
	}
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	player, ok := s.mediaPlayer(w, r)
	if !ok {
		return
	}
	s.finish(w, player.Snapshot, player.Mute())
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	player, ok := s.mediaPlayer(w, r)
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Action {
	case "play":
		s.finish(w, player.Snapshot, player.Play())
	case "pause":
		s.finish(w, player.Snapshot, player.Pause())
	case "stop":
		s.finish(w, player.Snapshot, player.StopPlayback())
	default:
		writeError(w, http.StatusBadRequest, "action must be play, pause or stop")
	}
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	player, ok := s.mediaPlayer(w, r)
	if !ok {
		return
	}

	var req struct {
		Source string `json:"source"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	s.finish(w, player.Snapshot, player.SelectSource(req.Source))
}

// finish reports a transmission fault as a gateway error, otherwise returns
// the device's post-request snapshot.
func (s *Server) finish(w http.ResponseWriter, snapshot func() device.Snapshot, err error) {
	if err != nil {
		s.logger.Error("Command transmission failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "command transmission failed")
		return
	}
	writeJSON(w, http.StatusOK, snapshot())
}

func (s *Server) handleSetupStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := s.setup.Start(req.Name, req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSetupEntities(w http.ResponseWriter, r *http.Request) {
	choices, err := s.setup.Entities(chi.URLParam(r, "sid"))
	if err != nil {
		s.writeSetupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, choices)
}

func (s *Server) handleSetupOptions(w http.ResponseWriter, r *http.Request) {
	options, err := s.setup.Options(r.Context(), chi.URLParam(r, "sid"), r.URL.Query().Get("query"))
	if err != nil {
		s.writeSetupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"options": options})
}

func (s *Server) handleSetupSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code              string `json:"code"`
		Controller        string `json:"controller"`
		TemperatureSensor string `json:"temperature_sensor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.setup.Select(r.Context(), chi.URLParam(r, "sid"), req.Code, req.Controller, req.TemperatureSensor)
	if err != nil {
		s.writeSetupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetupActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.setup.TestActions(chi.URLParam(r, "sid"))
	if err != nil {
		s.writeSetupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

func (s *Server) handleSetupTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.setup.Test(chi.URLParam(r, "sid"), req.Action); err != nil {
		s.writeSetupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetupSave(w http.ResponseWriter, r *http.Request) {
	entry, err := s.setup.Save(chi.URLParam(r, "sid"))
	if err != nil {
		s.writeSetupError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": entry.ID})
}

func (s *Server) writeSetupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, setup.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, setup.ErrCommandNotFound),
		errors.Is(err, setup.ErrUnknownAction),
		errors.Is(err, setup.ErrNoCodeSelected),
		errors.Is(err, setup.ErrControllerNeeded),
		errors.Is(err, setup.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Setup step failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HTTP control surface
//
// Exposes the measurement engine over REST plus a websocket event stream
// and a Prometheus scrape endpoint. The server never drives phases
// itself; it only forwards start/abort requests and reads state.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auto-offset-go/pkg/calibrate"
	"auto-offset-go/pkg/history"
	"auto-offset-go/pkg/log"
)

// Server serves the engine API.
type Server struct {
	engine  *calibrate.Calibrator
	history *history.Store
	lg      *log.Logger

	httpServer *http.Server
	hub        *wsHub
}

// Config holds server construction parameters. History and Registry are
// optional; their endpoints are omitted when absent.
type Config struct {
	Addr     string
	Engine   *calibrate.Calibrator
	History  *history.Store
	Registry *prometheus.Registry
	Logger   *log.Logger
}

// New creates a Server and wires its routes.
func New(cfg Config) *Server {
	s := &Server{
		engine:  cfg.Engine,
		history: cfg.History,
		lg:      cfg.Logger,
		hub:     newWSHub(cfg.Logger),
	}

	r := mux.NewRouter()
	r.HandleFunc("/calibration/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/calibration/abort", s.handleAbort).Methods(http.MethodPost)
	r.HandleFunc("/calibration/status", s.handleStatus).Methods(http.MethodGet)
	if s.history != nil {
		r.HandleFunc("/calibration/history", s.handleHistory).Methods(http.MethodGet)
		r.HandleFunc("/calibration/history/chart", s.handleChart).Methods(http.MethodGet)
	}
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}
	r.HandleFunc("/ws", s.hub.handleConnect)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.engine.Events().Subscribe(s.hub.broadcast)
	return s
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.lg.Infof("api listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// startRequest is the JSON body of a start call. Absent fields keep the
// configured behavior.
type startRequest struct {
	Heat            *bool    `json:"heat,omitempty"`
	Level           *bool    `json:"level,omitempty"`
	Clean           *bool    `json:"clean,omitempty"`
	AccuracyCheck   *bool    `json:"accuracy_check,omitempty"`
	TriggerDistance *bool    `json:"trigger_distance,omitempty"`
	SensorOffset    *bool    `json:"sensor_offset,omitempty"`
	NozzleTemp      *float64 `json:"nozzle_temp,omitempty"`
	BedTemp         *float64 `json:"bed_temp,omitempty"`
	DebugLevel      *int     `json:"debug_level,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	opts := calibrate.RunOptions{
		EnableHeating:         req.Heat,
		EnableLeveling:        req.Level,
		EnableCleaning:        req.Clean,
		EnableAccuracyCheck:   req.AccuracyCheck,
		EnableTriggerDistance: req.TriggerDistance,
		EnableSensorOffset:    req.SensorOffset,
		NozzleTemp:            req.NozzleTemp,
		BedTemp:               req.BedTemp,
		DebugLevel:            req.DebugLevel,
	}
	if _, err := s.engine.Start(opts); err != nil {
		if errors.Is(err, calibrate.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	s.engine.Abort()
	writeJSON(w, http.StatusOK, map[string]string{"status": "abort requested"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	records, err := s.history.Load(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.Load(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := history.RenderChart(w, records); err != nil {
		s.lg.Warnf("chart render failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/config"
	"github.com/deviantnotify/deviant-notify/internal/monitoring"
)

const maxRequestBody = 1 << 20

// Server exposes the controller over HTTP
type Server struct {
	controller *Controller
	monitor    Monitor
	hub        *Hub
	metrics    *monitoring.Metrics
	router     *mux.Router
}

func NewServer(controller *Controller, monitor Monitor, hub *Hub, metrics *monitoring.Metrics) *Server {
	s := &Server{
		controller: controller,
		monitor:    monitor,
		hub:        hub,
		metrics:    metrics,
		router:     mux.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	s.router.HandleFunc("/rpc", s.rpcHandler).Methods("POST")
	s.router.HandleFunc("/popup", s.popupHandler).Methods("GET")
	s.router.HandleFunc("/notifications/{id}/buttons/{index:[0-9]+}", s.buttonHandler).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	if s.hub != nil {
		s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			s.hub.ServeWs(w, r, s.monitor.PopupData())
		}).Methods("GET")
	}
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"version":   config.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) popupHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.PopupData())
}

func (s *Server) rpcHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := logrus.WithField("request_id", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := DecodeRequest(body)
	if err != nil {
		log.Warnf("Rejected RPC request: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log = log.WithField("action", req.Action())
	resp, err := s.controller.Dispatch(r.Context(), req)
	if err != nil {
		log.Errorf("RPC failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownAction) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	log.Debug("RPC handled")
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) buttonHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid button index")
		return
	}

	redirect, err := s.controller.HandleButton(r.Context(), vars["id"], index)
	if err != nil {
		logrus.Errorf("Button %d on %s failed: %v", index, vars["id"], err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"status": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

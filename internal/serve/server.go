package serve

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds a predict request.
const maxBodyBytes = 1 << 20

// PredictRequest is the body of POST /v1/predict.
type PredictRequest struct {
	Rows []map[string]float64 `json:"rows"`
}

// PredictResponse is the reply to POST /v1/predict.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc    *Service
	router *chi.Mux
	logger *slog.Logger
}

// NewServer returns a handler exposing svc.
func NewServer(svc *Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		router: chi.NewRouter(),
		logger: logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/v1/model", s.handleModel)
	s.router.Post("/v1/predict", s.handlePredict)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Metadata())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})

		return
	}

	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rows must not be empty"})

		return
	}

	predictions, err := s.svc.Predict(req.Rows)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrClosed) {
			status = http.StatusServiceUnavailable
		}

		s.logger.Warn("Prediction failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)

		writeJSON(w, status, errorResponse{Error: err.Error()})

		return
	}

	s.logger.Debug("Prediction served",
		"request_id", middleware.GetReqID(r.Context()),
		"rows", len(req.Rows),
	)

	writeJSON(w, http.StatusOK, PredictResponse{Predictions: predictions})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

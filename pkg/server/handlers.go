package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/sprout-iot/sprout/internal/errors"
)

// latestResponse is the body of GET /api/readings/latest.
type latestResponse struct {
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
	Source     string          `json:"source"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				errors.New("E401").WithDetailf("limit is %d bytes", s.config.MaxBodyBytes))
			return
		}
		s.writeError(w, http.StatusBadRequest, errors.New("E400").Wrap(err))
		return
	}

	cur, err := s.deps.Pipeline.Submit(r.Context(), body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(cur.Payload.Bytes())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	cur, ok := s.deps.Store.Get()
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("E402"))
		return
	}
	s.writeJSON(w, http.StatusOK, latestResponse{
		Payload:    cur.Payload.Bytes(),
		ReceivedAt: cur.ReceivedAt.UTC(),
		Source:     string(cur.Source),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Health.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("response encode failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	se := errors.FromError(err, "E400")
	s.writeJSON(w, status, se.Body())
}

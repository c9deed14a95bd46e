package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Irkaa10/ensdir/directory"
	"github.com/Irkaa10/ensdir/models"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Hello, world!"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StatsResponse{Count: s.dir.Len()})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	addr, found, err := s.dir.Resolve(name)
	if err != nil {
		if errors.Is(err, directory.ErrMalformedEntry) {
			resolveTotal.WithLabelValues("malformed").Inc()
			s.logger.Warn("malformed directory entry", "name", name, "err", err)
			writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
				Error:   "MalformedEntry",
				Message: err.Error(),
			})
			return
		}
		resolveTotal.WithLabelValues("error").Inc()
		s.logger.Error("resolve failed", "name", name, "err", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "InternalError"})
		return
	}

	if !found {
		resolveTotal.WithLabelValues("missing").Inc()
		writeJSON(w, http.StatusOK, models.ResolveResponse{})
		return
	}
	resolveTotal.WithLabelValues("found").Inc()
	writeJSON(w, http.StatusOK, models.ResolveResponse{Address: &addr})
}

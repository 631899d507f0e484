package api

import (
	"encoding/json"
	"net/http"
)

// HealthHandler validates both liveness and database connectivity.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pool == nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
			return
		}

		if err := s.Pool.Ping(r.Context()); err != nil {
			s.Logger.Error("health_check_failed", "error", err, "detail", "database_unreachable")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

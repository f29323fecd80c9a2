package core

import (
	"context"
	"net/http"
	"time"
)

// healthResponse is the payload returned by the health endpoint.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth reports service liveness. The database probe runs with a
// short deadline so a wedged pool cannot hang the check; when the probe
// fails the endpoint returns 503 so load balancers rotate the instance out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Checks: map[string]string{},
	}
	status := http.StatusOK

	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Error("health check database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["database"] = "ok"
		}
	}

	JSON(w, r, status, resp)
}

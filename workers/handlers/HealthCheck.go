package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(); err != nil {
			log.Printf("Health check: redis unreachable: %s", err.Error())
			responseJSON(w, &APIResponse{
				Status:  "error",
				Message: "session store unreachable",
			}, http.StatusServiceUnavailable)
			return
		}
	}
	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"fishmarket/utils"
)

// Health reports liveness including database connectivity.
func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.DB.PingContext(ctx); err != nil {
		utils.SendJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "down",
		})
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "up",
	})
}

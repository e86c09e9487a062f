package handle

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
)

func (h *Handle) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = n
	}
	list, err := h.d.History.ListScans(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": list})
}

func (h *Handle) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.d.History.ClearScans(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "history error: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) Rankings(w http.ResponseWriter, r *http.Request) {
	list, err := service.Rankings(r.Context(), h.d.Records, r.URL.Query().Get("class"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rankings error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rankings": list})
}

type HealthResponse struct {
	Status  string `json:"status"`
	Store   string `json:"store"`
	Scanner *scan.Status `json:"scanner,omitempty"`
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok"}
	if h.d.Status != nil {
		st := h.d.Status.Status()
		resp.Scanner = &st
	}
	if err := h.d.Records.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

package events

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"log/slog"
)

// QueryHandler serves an incident's timeline at /incidents/{id}/events.
type QueryHandler struct {
	Journal Journal
	Logger  *slog.Logger
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	filter := Filter{IncidentID: id}
	if kind := q.Get("kind"); kind != "" {
		filter.Kind = Kind(kind)
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = l
		}
	}

	evts, err := h.Journal.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list incident events", "err", err, "incident_id", id)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"incident_id": id,
		"events":      evts,
	})
}

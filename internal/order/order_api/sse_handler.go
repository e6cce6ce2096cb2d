package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-rental/internal/apperr"
)

// StationEvents streams order events for the caller's station. Admins receive every station.
func (h *Handler) StationEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	station, err := h.OrderService.FeedStation(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, apperr.Internal(nil, "streaming unsupported"))
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	events := h.Stations.Subscribe(ctx, station)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"station_id\":%d}\n\n", station)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("%s connected to station %d feed", actor.ID, station))

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("failed to serialize order event: %v", err))
				continue
			}
			fmt.Fprintf(w, "id: %d-%d\nevent: order\ndata: %s\n\n", event.OrderID, event.OccurredAt.UnixMilli(), data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("%s disconnected from station %d feed", actor.ID, station))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

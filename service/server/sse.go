package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/metrics"
)

// sseKeepaliveInterval is how often a comment is written to idle streams so
// proxies don't drop the connection.
const sseKeepaliveInterval = 10 * time.Second

// handleStreamRecords handles SSE streaming of flushed records. Each client
// gets its own feed subscription; slow clients miss records rather than
// stalling the flusher.
// GET /api/v1/stream/records
func handleStreamRecords(f *feed.Feed, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		ch, cancel := f.Subscribe()
		defer cancel()

		m.SSEConnectionOpened()
		defer m.SSEConnectionClosed()

		logger.DebugContext(r.Context(), "SSE client connected",
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event
		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		flusher.Flush()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				// Send keepalive comment to prevent timeout
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case rec, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(rec)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal record",
						"id", rec.ID,
						"error", err,
					)
					continue
				}

				fmt.Fprintf(w, "event: record\ndata: %s\n\n", string(data))
				flusher.Flush()
				m.RecordSSEEvent()

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

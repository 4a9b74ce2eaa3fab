package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a controls update
)

// recordsResponse is the snapshot returned by GET /api/v1/records.
type recordsResponse struct {
	Records          []*record.Record  `json:"records"`
	ConnectionStatus map[string]string `json:"connection_status"`
	QueueDepth       int               `json:"queue_depth"`
	Controls         feed.Controls     `json:"controls"`
}

// handleListRecords returns a handler that serves the visible-records
// snapshot, newest first, with per-network connection status.
// GET /api/v1/records
func handleListRecords(f *feed.Feed, statuses func() map[string]string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs := f.Records()
		if recs == nil {
			recs = []*record.Record{}
		}

		resp := recordsResponse{
			Records:          recs,
			ConnectionStatus: statuses(),
			QueueDepth:       f.QueueDepth(),
			Controls:         f.Controls(),
		}

		logger.Debug("records snapshot served", "count", len(recs))
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleGetControls returns a handler that serves the current controls.
// GET /api/v1/controls
func handleGetControls(f *feed.Feed, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.Controls(), http.StatusOK)
	})
}

// handleUpdateControls returns a handler that replaces the feed controls.
// The new controls take effect immediately: the visible window is refiltered
// retroactively.
// PUT /api/v1/controls
func handleUpdateControls(f *feed.Feed, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var controls feed.Controls
		if err := json.NewDecoder(r.Body).Decode(&controls); err != nil {
			logger.Debug("invalid controls body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := f.UpdateControls(controls); err != nil {
			logger.Debug("controls rejected", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		logger.Info("controls updated",
			"min_amount", controls.MinAmount,
			"whale_only", controls.WhaleOnly,
			"paused", controls.Paused,
			"filter", controls.Filter,
		)
		writeJSON(w, f.Controls(), http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

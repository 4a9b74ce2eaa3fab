package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

func TestSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/records", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{
			"records":[{"id":"r1","amount":"1.5","network":"bitcoin","channel":"wallet"}],
			"connection_status":{"bitcoin":"live"},
			"queue_depth":3,
			"controls":{"min_amount":0,"max_visible":50,"flush_interval_ms":400}
		}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil, nil)
	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Records, 1)
	assert.Equal(t, "r1", snapshot.Records[0].ID)
	assert.Equal(t, "live", snapshot.ConnectionStatus["bitcoin"])
	assert.Equal(t, 3, snapshot.QueueDepth)
	assert.Equal(t, 50, snapshot.Controls.MaxVisible)
}

func TestUpdateControls(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/controls", r.URL.Path)
		require.Equal(t, http.MethodPut, r.Method)

		var controls feed.Controls
		require.NoError(t, json.NewDecoder(r.Body).Decode(&controls))
		assert.Equal(t, 5.0, controls.MinAmount)

		json.NewEncoder(w).Encode(controls)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil, nil)
	installed, err := c.UpdateControls(context.Background(), feed.Controls{
		MinAmount:       5,
		MaxVisible:      50,
		FlushIntervalMs: 400,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, installed.MinAmount)
}

func TestUpdateControls_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"max_visible must be positive, got 0"}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil, nil)
	_, err := c.UpdateControls(context.Background(), feed.Controls{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_visible must be positive")
}

func TestStreamRecords(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: record\ndata: {\"id\":\"r1\",\"amount\":\"2.5\"}\n\n")
		fmt.Fprint(w, "event: record\ndata: {\"id\":\"r2\",\"amount\":\"7.5\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []*record.Record
	done := make(chan error, 1)
	go func() {
		done <- NewClient(ts.URL, nil, nil).StreamRecords(ctx, func(rec *record.Record) {
			got = append(got, rec)
			if len(got) == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}

	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)
}

package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/santierhq/santier/client/queue"
)

func TestMonitor_DrainsOnReconnect(t *testing.T) {
	var healthy atomic.Bool
	var drains atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]string{"id": "x"})
	})

	coordinator, q, _ := newTestCoordinator(t, mux, newFakeFiles())
	coordinator.notify = func(Result) { drains.Add(1) }

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	monitor := NewMonitor(ts.URL+"/health", 20*time.Millisecond, coordinator)
	require.False(t, monitor.Online())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	// Offline: probes fail, nothing drains.
	time.Sleep(60 * time.Millisecond)
	require.False(t, monitor.Online())

	_, err := q.Enqueue(ctx, &queue.CreateIssue{SiteID: "site-1", Title: "offline"}, nil)
	require.NoError(t, err)

	// Back online: the transition triggers exactly one drain of the item.
	healthy.Store(true)
	require.Eventually(t, func() bool {
		return monitor.Online() && drains.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

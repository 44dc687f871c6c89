package sync

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/santierhq/santier/pkg/logger"
)

const defaultProbeInterval = 30 * time.Second

// Monitor probes the server health endpoint and triggers a queue drain on the
// offline-to-online transition. It does not cancel a running drain; a trigger
// observed mid-drain is dropped by the Coordinator's guard.
type Monitor struct {
	healthURL   string
	interval    time.Duration
	coordinator *Coordinator
	http        *http.Client
	log         *zap.Logger

	online atomic.Bool
}

// NewMonitor builds a Monitor probing healthURL every interval. A
// non-positive interval uses the 30 second default.
func NewMonitor(healthURL string, interval time.Duration, coordinator *Coordinator) *Monitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Monitor{
		healthURL:   healthURL,
		interval:    interval,
		coordinator: coordinator,
		http:        &http.Client{Timeout: 10 * time.Second},
		log:         logger.WithModule("connectivity"),
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Run probes until ctx is cancelled. The first successful probe also counts
// as a transition, so a drain runs at app start when the server is reachable.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	reachable := m.check(ctx)
	wasOnline := m.online.Swap(reachable)

	if reachable && !wasOnline {
		m.log.Info("back online, draining queue")
		if _, err := m.coordinator.Drain(ctx); err != nil {
			m.log.Warn("drain after reconnect", zap.Error(err))
		}
	}
}

func (m *Monitor) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

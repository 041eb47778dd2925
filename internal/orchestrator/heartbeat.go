package orchestrator

import "time"

// heartbeatTicker wraps a time.Ticker that may be absent when heartbeats are
// disabled; C returns a nil channel in that case so selects simply skip it.
type heartbeatTicker struct {
	t *time.Ticker
}

func (m *Manager) heartbeatTicker() *heartbeatTicker {
	if m.heartbeatTimeout <= 0 {
		return &heartbeatTicker{}
	}
	interval := m.heartbeatTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	return &heartbeatTicker{t: time.NewTicker(interval)}
}

func (h *heartbeatTicker) C() <-chan time.Time {
	if h.t == nil {
		return nil
	}
	return h.t.C
}

func (h *heartbeatTicker) Stop() {
	if h.t != nil {
		h.t.Stop()
	}
}

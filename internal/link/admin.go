package link

import (
	"encoding/json"
	"net/http"

	"github.com/dustin/go-humanize"
	"tailscale.com/tsweb"
)

// Status is a point-in-time view of the manager for display and debugging.
type Status struct {
	State        State      `json:"state"`
	Config       Config     `json:"config"`
	BytesRead    uint64     `json:"bytes_read"`
	BytesDropped uint64     `json:"bytes_dropped"`
	Pending      int        `json:"pending"`
	LastError    string     `json:"last_error,omitempty"`
	KnownPorts   []PortInfo `json:"known_ports"`
}

// Status returns a consistent snapshot of state and configuration.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		State:      m.state,
		Config:     m.cfg,
		KnownPorts: make([]PortInfo, len(m.ports)),
	}
	copy(st.KnownPorts, m.ports)
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	st.BytesRead = m.BytesRead()
	st.BytesDropped = m.BytesDropped()
	st.Pending = m.Pending()
	return st
}

// AttachAdminRoutes adds link debugging endpoints to the /debug/ page served
// from mux. These routes are only reachable from localhost or the tailnet.
func (m *Manager) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Link state", func() any { return m.State().String() })
	debug.KVFunc("Link port", func() any { return m.Config().Port })
	debug.KVFunc("Link bytes read", func() any { return humanize.Bytes(m.BytesRead()) })

	debug.HandleFunc("link", "serial link status as JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m.Status()); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("link-refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := m.RefreshKnownPorts(); err != nil {
			http.Error(w, "Failed to enumerate ports", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.KnownPorts())
	})
}

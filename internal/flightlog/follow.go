package flightlog

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/ground.control/internal/link"
)

// Follow opens a session each time m opens a port and ends it when the link
// drops. The session starts on m's connect goroutine, before any byte can be
// read, so the first samples of a connection are never lost. The returned
// channel is closed once ctx is done or m is closed.
func (l *Log) Follow(ctx context.Context, m *link.Manager) <-chan struct{} {
	var stopped atomic.Bool
	m.OnConnect(func(cfg link.Config) {
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		if _, err := l.StartSession(ctx, cfg.Port, cfg.BaudRate); err != nil {
			logf("start session: %v", err)
		}
	})

	id, states := m.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer stopped.Store(true)
		defer m.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-states:
				if !ok {
					return
				}
				l.onLinkState(ctx, s, m.State())
			}
		}
	}()
	return done
}

// onLinkState ends the session on a drop. A drop that is already stale,
// because the next connection has begun, leaves that connection's session
// alone.
func (l *Log) onLinkState(ctx context.Context, s, now link.State) {
	switch s {
	case link.Disconnected, link.Failed:
		if now != link.Disconnected && now != link.Failed {
			return
		}
		if err := l.EndSession(ctx); err != nil {
			logf("end session: %v", err)
		}
	}
}

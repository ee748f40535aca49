package flightlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/ground.control/internal/series"
)

// SessionInfo summarises one recorded session.
type SessionInfo struct {
	ID        string     `json:"id"`
	Port      string     `json:"port"`
	BaudRate  int        `json:"baud_rate"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Samples   int64      `json:"samples"`
}

// Sessions lists recorded sessions, newest first.
func (l *Log) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT s.session_id, s.port, s.baud_rate, s.started_at, s.ended_at,
		       (SELECT COUNT(*) FROM samples WHERE samples.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			s     SessionInfo
			ended sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Port, &s.BaudRate, &s.StartedAt, &ended, &s.Samples); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Samples returns the recorded samples of one series in a session, in
// arrival order.
func (l *Log) Samples(ctx context.Context, sessionID, seriesID string) ([]series.Sample, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT boot_time, value FROM samples WHERE session_id = ? AND series_id = ? ORDER BY seq`,
		sessionID, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []series.Sample
	for rows.Next() {
		var s series.Sample
		if err := rows.Scan(&s.Time, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts a TailSQL console over the log and a session
// listing on the /debug/ page.
func (l *Log) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+l.path, l.db, &tailsql.DBOptions{
		Label: "Flight log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("flightlog", "recorded sessions as JSON", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := l.Sessions(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list sessions: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session":  l.Session(),
			"stats":    l.Stats(),
			"sessions": sessions,
		})
	})
	return nil
}

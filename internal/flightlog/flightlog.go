// Package flightlog records telemetry samples to SQLite so a flight can be
// analysed after the fact. Samples are grouped by session, one per
// connection. The live series store is never reloaded from it.
package flightlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/ground.control/internal/monitoring"
	"github.com/banshee-data/ground.control/internal/series"
)

var logf = monitoring.Component("flightlog")

// ErrNoSession is returned by Record when no session has been started.
var ErrNoSession = errors.New("no active session")

var errClosed = errors.New("flight log closed")

const defaultQueueDepth = 64

type row struct {
	series string
	sample series.Sample
	seq    int64
}

type batch struct {
	session string
	rows    []row
}

// Log is a flight log backed by a SQLite file. Record and Flush are called
// from the poll loop and never touch the database; a writer goroutine
// started by Start commits flushed batches.
type Log struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	session string
	seq     int64
	pending []row

	queue   chan batch
	done    chan struct{}
	started bool
	closed  bool

	written monitoring.Counter
	dropped monitoring.Counter
	failed  monitoring.Counter
}

// Open opens or creates the log at path and migrates its schema.
func Open(ctx context.Context, path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection keeps in-memory databases shared between queries
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	l := &Log{
		db:    db,
		path:  path,
		queue: make(chan batch, defaultQueueDepth),
		done:  make(chan struct{}),
	}
	if err := l.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// DB exposes the underlying database for ad hoc queries.
func (l *Log) DB() *sql.DB { return l.db }

// StartSession ends any open session and begins a new one.
func (l *Log) StartSession(ctx context.Context, port string, baudRate int) (string, error) {
	if err := l.EndSession(ctx); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, port, baud_rate) VALUES (?, ?, ?)`,
		id, port, baudRate,
	); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	l.mu.Lock()
	l.session = id
	l.seq = 0
	l.mu.Unlock()
	logf("session %s started on %s", id, port)
	return id, nil
}

// EndSession flushes and closes the open session, if any.
func (l *Log) EndSession(ctx context.Context) error {
	l.mu.Lock()
	id := l.session
	l.mu.Unlock()
	if id == "" {
		return nil
	}
	if err := l.Flush(); err != nil {
		return err
	}
	l.mu.Lock()
	if l.session == id {
		l.session = ""
	}
	l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return nil
}

// Session returns the id of the open session, or "".
func (l *Log) Session() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Record buffers one sample for the open session.
func (l *Log) Record(seriesID string, s series.Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == "" {
		return ErrNoSession
	}
	l.seq++
	l.pending = append(l.pending, row{series: seriesID, sample: s, seq: l.seq})
	return nil
}

// Flush hands buffered samples to the writer. It does not wait for them to
// be written; when the writer has fallen behind the batch is dropped.
func (l *Log) Flush() error {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return nil
	}
	b := batch{session: l.session, rows: l.pending}
	l.pending = nil
	if !l.started {
		l.mu.Unlock()
		return l.write(context.Background(), b)
	}
	defer l.mu.Unlock()
	if l.closed {
		l.dropped.Add(uint64(len(b.rows)))
		return errClosed
	}
	select {
	case l.queue <- b:
		return nil
	default:
		l.dropped.Add(uint64(len(b.rows)))
		return fmt.Errorf("writer queue full, dropped %d samples", len(b.rows))
	}
}

// Start runs the writer goroutine until ctx is done or Close is called.
// Before Start, Flush writes synchronously.
func (l *Log) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				l.drain()
				return
			case b, ok := <-l.queue:
				if !ok {
					return
				}
				if err := l.write(context.Background(), b); err != nil {
					logf("write batch: %v", err)
				}
			}
		}
	}()
}

func (l *Log) drain() {
	for {
		select {
		case b, ok := <-l.queue:
			if !ok {
				return
			}
			if err := l.write(context.Background(), b); err != nil {
				logf("write batch: %v", err)
			}
		default:
			return
		}
	}
}

func (l *Log) write(ctx context.Context, b batch) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.failed.Add(uint64(len(b.rows)))
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (session_id, series_id, boot_time, value, seq) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		l.failed.Add(uint64(len(b.rows)))
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range b.rows {
		if _, err := stmt.ExecContext(ctx, b.session, r.series, r.sample.Time, r.sample.Value, r.seq); err != nil {
			l.failed.Add(uint64(len(b.rows)))
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		l.failed.Add(uint64(len(b.rows)))
		return fmt.Errorf("commit: %w", err)
	}
	l.written.Add(uint64(len(b.rows)))
	return nil
}

// Close ends the open session, stops the writer and closes the database.
func (l *Log) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	endErr := l.EndSession(ctx)

	l.mu.Lock()
	started := l.started && !l.closed
	l.closed = true
	l.mu.Unlock()
	if started {
		close(l.queue)
		<-l.done
		l.drain()
	}
	return errors.Join(endErr, l.db.Close())
}

// Stats counts samples by outcome.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns the writer counters.
func (l *Log) Stats() Stats {
	return Stats{
		Written: l.written.Load(),
		Dropped: l.dropped.Load(),
		Failed:  l.failed.Load(),
	}
}

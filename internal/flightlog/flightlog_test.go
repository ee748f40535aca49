package flightlog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ground.control/internal/monitoring"
	"github.com/banshee-data/ground.control/internal/series"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpen_Migrates(t *testing.T) {
	l := openTestLog(t)
	version, dirty, err := l.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// migrating again is a no-op
	require.NoError(t, l.MigrateUp())

	for _, table := range []string{"sessions", "samples"} {
		var n int
		err := l.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestRecord_RequiresSession(t *testing.T) {
	l := openTestLog(t)
	err := l.Record(series.AccelX, series.Sample{Time: 1, Value: 2})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRecordAndQuery_Synchronous(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	id, err := l.StartSession(ctx, "/dev/ttyUSB0", 57600)
	require.NoError(t, err)
	assert.Equal(t, id, l.Session())

	require.NoError(t, l.Record(series.AccelZ, series.Sample{Time: 0.5, Value: 9.81}))
	require.NoError(t, l.Record(series.AccelZ, series.Sample{Time: 0.4, Value: 9.7}))
	require.NoError(t, l.Record(series.GyroX, series.Sample{Time: 0.5, Value: 0.1}))
	require.NoError(t, l.Flush())

	got, err := l.Samples(ctx, id, series.AccelZ)
	require.NoError(t, err)
	assert.Equal(t, []series.Sample{{Time: 0.5, Value: 9.81}, {Time: 0.4, Value: 9.7}}, got,
		"samples come back in arrival order")
	assert.Equal(t, uint64(3), l.Stats().Written)

	require.NoError(t, l.EndSession(ctx))
	assert.Empty(t, l.Session())

	sessions, err := l.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, "/dev/ttyUSB0", sessions[0].Port)
	assert.Equal(t, 57600, sessions[0].BaudRate)
	assert.Equal(t, int64(3), sessions[0].Samples)
	assert.NotNil(t, sessions[0].EndedAt)
}

func TestWriter_Async(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := openTestLog(t)
	l.Start(ctx)

	id, err := l.StartSession(ctx, "sim0", 115200)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Record(series.MagX, series.Sample{Time: float64(i), Value: float64(-i)}))
	}
	require.NoError(t, l.Flush())

	require.Eventually(t, func() bool { return l.Stats().Written == 50 }, 2*time.Second, 5*time.Millisecond)
	got, err := l.Samples(ctx, id, series.MagX)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestClose_FlushesPending(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flight.db")
	l, err := Open(ctx, path)
	require.NoError(t, err)
	l.Start(ctx)

	id, err := l.StartSession(ctx, "sim0", 9600)
	require.NoError(t, err)
	require.NoError(t, l.Record(series.AccelX, series.Sample{Time: 1, Value: 1}))
	require.NoError(t, l.Close())
	assert.NoError(t, l.Flush())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Samples(ctx, id, series.AccelX)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStartSession_EndsPrevious(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	first, err := l.StartSession(ctx, "a", 9600)
	require.NoError(t, err)
	second, err := l.StartSession(ctx, "b", 9600)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	sessions, err := l.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		if s.ID == first {
			assert.NotNil(t, s.EndedAt)
		} else {
			assert.Nil(t, s.EndedAt)
		}
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	l := openTestLog(t)
	mux := http.NewServeMux()
	require.NoError(t, l.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/flightlog", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessions"`)
}

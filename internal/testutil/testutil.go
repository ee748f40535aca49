// Package testutil provides shared test helpers: HTTP assertions and
// MAVLink frame fixtures for the link, pipeline and API tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/ground.control/internal/mavlink"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request with no body.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest creates a test request whose body is body encoded as JSON.
// A string body is sent verbatim.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// DecodeBody unmarshals the recorder's JSON body into v.
func DecodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// CompositeFrame encodes one composite record as a MAVLink v2 frame from
// system 1 component 1.
func CompositeFrame(t *testing.T, seq uint8, c mavlink.Composite) []byte {
	t.Helper()
	frame, err := mavlink.DefaultDialect.Encode(mavlink.Header{Seq: seq, SystemID: 1, ComponentID: 1}, &c)
	if err != nil {
		t.Fatalf("encode composite: %v", err)
	}
	return frame
}

// CompositeStream concatenates n composite frames spaced stepMs apart
// starting at boot time zero. Axis values grow with the index.
func CompositeStream(t *testing.T, n int, stepMs uint32) []byte {
	t.Helper()
	var out []byte
	for i := range n {
		v := int16(i)
		out = append(out, CompositeFrame(t, uint8(i), mavlink.Composite{
			TimeBootMs: uint32(i) * stepMs,
			IMUTriple: mavlink.IMUTriple{
				XAcc: 1000 + v, YAcc: v, ZAcc: -1000,
				XGyro: 10 * v, YGyro: 0, ZGyro: -10 * v,
				XMag: 200, YMag: 300 + v, ZMag: 400,
			},
		})...)
	}
	return out
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphanumeric(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"PADTON", true},
		{"PAD", true},
		{"X68442", true},
		{"", false},
		{"PAD TON", false},
		{"pad", false},
		{"P'D", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, alphanumeric(tt.in), "%q", tt.in)
	}
}

func TestParseBoardTime(t *testing.T) {
	before := time.Now()
	got, err := parseBoardTime("now")
	require.NoError(t, err)
	assert.WithinDuration(t, before, got, time.Second)

	got, err = parseBoardTime("")
	require.NoError(t, err)
	assert.WithinDuration(t, before, got, time.Second)

	got, err = parseBoardTime("2024-01-01T10:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), got)

	got, err = parseBoardTime("2024-01-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), got)

	_, err = parseBoardTime("half past ten")
	assert.Error(t, err)
}

func TestRawList(t *testing.T) {
	out := rawList([][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)})
	require.Len(t, out, 2)
	assert.Equal(t, json.RawMessage(`{"a":1}`), out[0])

	assert.NotNil(t, rawList(nil), "empty lists encode as [], not null")
	assert.Empty(t, rawList(nil))
}

func errorStatus(t *testing.T, handler http.Handler, target string) (int, errorResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestDeparturesRejectsBadLocation(t *testing.T) {
	// Validation runs before any query, so no pool is needed.
	s := NewServer(nil)

	code, body := errorStatus(t, s.Handler(), "/json/departures/PAD%20TON")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Contains(t, body.Message, "alphanumeric")
}

func TestDeparturesRejectsBadTime(t *testing.T) {
	s := NewServer(nil)

	code, body := errorStatus(t, s.Handler(), "/json/departures/PADTON/whenever")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body.Message, "ISO 8601")
}

func TestWriteError(t *testing.T) {
	s := NewServer(nil)
	rec := httptest.NewRecorder()
	s.writeError(rec, http.StatusNotFound, "location not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, errorResponse{Status: http.StatusNotFound, Message: "location not found"}, body)
}

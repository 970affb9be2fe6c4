package timezone

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawOffset(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "48.858222,2.294500", r.URL.Query().Get("location"))
		assert.Equal(t, "1433161800", r.URL.Query().Get("timestamp"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		w.Write([]byte(`{"status":"OK","rawOffset":3600,"dstOffset":3600,"timeZoneId":"Europe/Paris"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second, nil)
	at := time.Date(2015, 6, 1, 12, 30, 0, 0, time.UTC)

	off, err := c.RawOffset(context.Background(), 48.858222, 2.2945, at)
	require.NoError(t, err)
	assert.Equal(t, 3600, off)

	// Same place, same day: served from memory.
	off, err = c.RawOffset(context.Background(), 48.858222, 2.2945, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3600, off)
	assert.EqualValues(t, 1, hits.Load())
}

func TestRawOffsetErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http status", http.StatusInternalServerError, ``},
		{"api status", http.StatusOK, `{"status":"ZERO_RESULTS"}`},
		{"bad body", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", time.Second, nil).RawOffset(context.Background(), 1, 2, time.Now())
			assert.Error(t, err)
		})
	}
}

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoller(url string) *Poller {
	p := NewPoller(url, time.Millisecond, 0)
	p.Client = &http.Client{Timeout: time.Second}
	return p
}

func TestPollerWaitsForBothStatusFields(t *testing.T) {
	responses := []string{
		`{"status":"bad"}`,
		`{"status":"ok","master_check":[{"status":"bad"}]}`,
		`{"status":"ok","master_check":[{"status":"ok"}]}`,
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := calls
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		w.Write([]byte(responses[idx]))
		calls++
	}))
	defer srv.Close()

	err := testPoller(srv.URL).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "poller must probe exactly once per response")
}

func TestPollerTreatsGarbageAsNotReady(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Write([]byte(`<html>starting</html>`))
			return
		}
		w.Write([]byte(`{"status":"ok","master_check":[{"status":"ok"}]}`))
	}))
	defer srv.Close()

	require.NoError(t, testPoller(srv.URL).Wait(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestPollerHonorsMaxWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"bad"}`))
	}))
	defer srv.Close()

	p := testPoller(srv.URL)
	p.MaxWait = 25 * time.Millisecond

	err := p.Wait(context.Background())
	assert.Error(t, err)
}

func TestPollerHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"bad"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err := testPoller(srv.URL).Wait(ctx)
	assert.Error(t, err)
}

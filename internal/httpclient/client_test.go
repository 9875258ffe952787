package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host/memhost"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/httpserver"
)

func newStatusServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()
	never := make(chan time.Time)
	eng := engine.New(memhost.New(), engine.Config{
		After:       func(time.Duration) <-chan time.Time { return never },
		JoinTimeout: time.Second,
	})
	require.NoError(t, eng.Attach())
	t.Cleanup(func() { _ = eng.Detach() })

	ts := httptest.NewServer(httpserver.New(eng, "", httpserver.WithVersion("0.9.0")).Handler())
	t.Cleanup(ts.Close)
	return eng, ts
}

func TestNewRejectsBadAddress(t *testing.T) {
	t.Parallel()

	_, err := New("http://", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	c, err := New("127.0.0.1:9464", nil)
	require.NoError(t, err)
	assert.Equal(t, "http", c.baseURL.Scheme)
	assert.Equal(t, DefaultTimeout, c.defaultTimeout)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	eng, ts := newStatusServer(t)
	c, err := New(ts.URL, &Config{UserAgent: "status-test"})
	require.NoError(t, err)
	defer c.Close()

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "0.9.0", h.Version)
	assert.True(t, h.Attached)

	require.NoError(t, eng.Detach())
	h, err = c.Health(context.Background())
	require.NoError(t, err, "detached engines still answer")
	assert.Equal(t, "detached", h.Status)
	assert.False(t, h.Attached)
}

func TestStreams(t *testing.T) {
	t.Parallel()

	eng, ts := newStatusServer(t)
	wf := format.NewPCM(format.TagIEEEFloat, 48000, 2, 32)
	_, err := eng.Create(context.Background(), engine.CreateRequest{
		Name:     "player",
		Flow:     audiocore.FlowRender,
		Duration: audiocore.FromDuration(200 * time.Millisecond),
		Format:   &wf,
	})
	require.NoError(t, err)

	c, err := New(ts.URL, nil)
	require.NoError(t, err)
	list, err := c.Streams(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "player", list[0].Name)
	assert.Equal(t, "render", list[0].Flow)
}

func TestUnexpectedStatus(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer ts.Close()

	c, err := New(ts.URL, nil)
	require.NoError(t, err)
	_, err = c.Streams(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.Equal(t, "pulseshim", <-agents)
}

func TestMalformedBody(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer ts.Close()

	c, err := New(ts.URL, nil)
	require.NoError(t, err)
	_, err = c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFormat))
}

func TestConnectionRefused(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	c, err := New(addr, &Config{DefaultTimeout: time.Second})
	require.NoError(t, err)
	_, err = c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	done := m.RequestStarted()
	assert.InDelta(t, 1, m.InFlight(), 0)
	done("GET", "/api/v1/streams", 200)
	assert.InDelta(t, 0, m.InFlight(), 0)

	m.RequestStarted()("GET", "", 404)

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/v1/streams", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "unmatched", "404")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Event("MESSAGE_CREATE")
	m.Event("MESSAGE_CREATE")
	m.Event("GUILD_CREATE")
	m.EntityCreated("message")
	m.FieldsChanged("channel", 3)
	m.FieldsChanged("channel", 0)
	m.HistoryFetch(FetchOK)
	m.HistoryFetch(FetchForbidden)
	m.HistoryDemoted(2)
	m.RegistrySwept(5)
	m.SetEntities(map[string]int{"channels": 4, "guilds": 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("MESSAGE_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("GUILD_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Created.WithLabelValues("message")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Changes.WithLabelValues("channel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues(FetchForbidden)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Demotions))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Swept))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Entities.WithLabelValues("channels")))

	m.ObserveREST(http.MethodGet, 40*time.Millisecond)
	m.ObserveREST(http.MethodGet, 3*time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(m.REST))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Event("READY")
		m.EntityCreated("guild")
		m.FieldsChanged("guild", 1)
		m.HistoryFetch(FetchError)
		m.HistoryDemoted(1)
		m.RegistrySwept(1)
		m.SetEntities(map[string]int{"users": 1})
		m.ObserveREST(http.MethodGet, time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Event("READY")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `entitycache_events_total{kind="READY"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

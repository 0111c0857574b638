package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RemoteRequest("insights", nil, time.Millisecond)
	c.RemoteRequest("insights", errors.New("boom"), time.Millisecond)
	c.CacheLookup("ephemeral", true)
	c.CacheLookup("durable", false)
	c.LeadsDiscovered("direct_ad_leads", 3, true)
	c.ProspectWrites(2, 1, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.remoteRequests.WithLabelValues("insights", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remoteRequests.WithLabelValues("insights", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("ephemeral", "hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.leadsDiscovered.WithLabelValues("direct_ad_leads")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.strategyErrors.WithLabelValues("direct_ad_leads")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.prospectWrites.WithLabelValues("saved")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RemoteRequest("campaigns", nil, time.Second)
		c.CacheLookup("ephemeral", false)
		c.LeadsDiscovered("x", 1, false)
		c.ProspectWrites(1, 1, 1)
		c.ObserveRequest("GET", "/insights", 200, time.Second)
	})
}

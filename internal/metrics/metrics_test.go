package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketreport/internal/fetcher"
)

func TestObserveFetch(t *testing.T) {
	m := New()

	m.ObserveFetch(fetcher.SourceQuote, fetcher.StatusOK, 120*time.Millisecond)
	m.ObserveFetch(fetcher.SourceQuote, fetcher.StatusOK, 80*time.Millisecond)
	m.ObserveFetch(fetcher.SourceScrape, fetcher.StatusError, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Observations.WithLabelValues("quote", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Observations.WithLabelValues("scrape", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Observations.WithLabelValues("derived", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.FetchDuration))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.ObserveFetch(fetcher.SourceDerived, fetcher.StatusNoData, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Observations.WithLabelValues("derived", "no_data")))
	assert.Equal(t, 0, testutil.CollectAndCount(b.Observations))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveFetch(fetcher.SourceQuote, fetcher.StatusNoData, 10*time.Millisecond)

	path := filepath.Join(t.TempDir(), "marketreport.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `marketreport_observations_total{source="quote",status="no_data"} 1`)
	assert.Contains(t, string(data), "marketreport_fetch_duration_seconds_bucket")
}

func TestWriteTextfile_BadDirectory(t *testing.T) {
	m := New()

	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "out.prom"))

	assert.Error(t, err)
}

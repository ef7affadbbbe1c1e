package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mercari.io/popcache"
	"go.mercari.io/popcache/cache/localcache"
	"go.mercari.io/popcache/internal/httpapi"
	"go.mercari.io/popcache/storage/memstore"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSamples(t *testing.T) {
	path := writeCSV(t, "Huntsville,Alabama,215006\nNowhere,Texas,abc\nSan Jose,California,1013240\nAustin,Texas,961855\n")

	rows, err := loadSamples(context.Background(), path, 2)
	require.NoError(t, err)
	assert.Equal(t, []sample{
		{city: "Huntsville", state: "Alabama", population: 215006},
		{city: "San Jose", state: "California", population: 1013240},
	}, rows)

	_, err = loadSamples(context.Background(), writeCSV(t, "a,b,c\n"), 2)
	assert.Error(t, err)
}

func TestPopulationURL(t *testing.T) {
	u := populationURL("http://localhost:5555/", sample{city: "San Jose", state: "California"})
	assert.Equal(t, "http://localhost:5555/api/population/state/California/city/San%20Jose", u)
}

func TestBench(t *testing.T) {
	ctx := context.Background()

	m := popcache.NewManager(localcache.New(), memstore.New())
	srv := httptest.NewServer(httpapi.New(m))
	defer srv.Close()

	rows := []sample{
		{city: "Huntsville", state: "Alabama", population: 215006},
		{city: "San Jose", state: "California", population: 1013240},
	}
	opts := options{baseURL: srv.URL, connections: 4, requests: 10, seed: 1}

	res, err := bench(ctx, opts, rows)
	require.NoError(t, err)
	assert.Equal(t, 80, res.requests)
	assert.Zero(t, res.failures)

	require.NoError(t, m.Close(ctx))

	for _, s := range rows {
		value, ok, err := m.Get(ctx, s.city, s.state)
		require.NoError(t, err)
		if ok {
			assert.Equal(t, s.population, value)
		}
	}

	var buf bytes.Buffer
	res.print(&buf, 1e9)
	assert.True(t, strings.HasPrefix(buf.String(), "requests: 80 in 1s (80.0 req/s)\n"), buf.String())
}

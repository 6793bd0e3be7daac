package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/config"
	"MovieDHT/internal/node/dht"
	"MovieDHT/internal/node/overlay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, members int, mutate ...func(*config.DHTConfig)) (*overlay.DHT, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig().DHT
	cfg.IDBits = 32
	for _, m := range mutate {
		m(&cfg)
	}
	d, err := overlay.NewFromConfig(cfg, nil)
	require.NoError(t, err)
	for i := range members {
		_, err := d.Join(fmt.Sprintf("node%d", i))
		require.NoError(t, err)
	}
	ts := httptest.NewServer(NewHTTPServer(d, 0, nil).Handler())
	t.Cleanup(ts.Close)
	return d, ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, empty := newTestServer(t, 0)
	var body map[string]any
	resp := getJSON(t, empty.URL+"/health", &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, false, body["healthy"])

	_, ts := newTestServer(t, 3)
	resp = getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, float64(3), body["members"])
	assert.Equal(t, "ring", body["protocol"])
}

func TestGet(t *testing.T) {
	d, ts := newTestServer(t, 8)
	_, err := d.Put(context.Background(), "Vertigo", domain.NewRecord("42", map[string]string{"year": "1958"}))
	require.NoError(t, err)

	for _, path := range []string{"/get?key=Vertigo", "/get?key=Vertigo&parallel=true"} {
		var res overlay.Result
		resp := getJSON(t, ts.URL+path, &res)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "1958", res.Records[0].Attr("year"))
		assert.NotEmpty(t, resp.Header.Get("X-Hops"))
	}

	resp := getJSON(t, ts.URL+"/get?key=Psycho", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = getJSON(t, ts.URL+"/get", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = getJSON(t, ts.URL+"/get?key=%20%20", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetFlagsHotKey(t *testing.T) {
	d, ts := newTestServer(t, 4, func(c *config.DHTConfig) {
		c.HotKeys.Threshold = 3
		c.HotKeys.DecayRate = 1
	})
	_, err := d.Put(context.Background(), "Heat", domain.NewRecord("1", nil))
	require.NoError(t, err)

	for i, want := range []string{"false", "false", "true"} {
		resp := getJSON(t, ts.URL+"/get?key=Heat", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, resp.Header.Get("X-Hot-Key"), "read %d", i+1)
	}
}

func TestGetOnEmptyOverlay(t *testing.T) {
	_, ts := newTestServer(t, 0)
	resp := getJSON(t, ts.URL+"/get?key=Vertigo", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDebug(t *testing.T) {
	d, ts := newTestServer(t, 4)
	_, err := d.Put(context.Background(), "Rope", domain.NewRecord("1", nil))
	require.NoError(t, err)

	var snap overlay.Snapshot
	resp := getJSON(t, ts.URL+"/debug?nodes=true", &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, snap.Members)
	assert.Len(t, snap.Nodes, 4)
	assert.Equal(t, 4, snap.Records) // owner plus three backups

	resp = getJSON(t, ts.URL+"/debug?hot=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var view dht.NodeView
	resp = getJSON(t, ts.URL+"/debug/node?name=node2", &view)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "node2", view.Node.Name)
	assert.NotNil(t, view.Successor)

	resp = getJSON(t, ts.URL+"/debug/node?name=ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = getJSON(t, ts.URL+"/debug/node?id=zz", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	d, ts := newTestServer(t, 2)
	_, err := d.Get(context.Background(), "Notorious")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `moviedht_members{protocol="ring"} 2`)
	assert.Contains(t, text, `moviedht_operations_total{op="get",protocol="ring",result="true"} 1`)
}

package halfake

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func get(t *testing.T, url string) (*http.Response, gjson.Result) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, gjson.ParseBytes(buf.Bytes())
}

func TestServer_Paging(t *testing.T) {
	api := New()
	api.Seed(5)
	srv := httptest.NewServer(api)
	defer srv.Close()

	_, root := get(t, srv.URL+"/api")
	assert.True(t, root.Get("_links.aggregators.templated").Bool())

	_, first := get(t, srv.URL+"/api/aggregators?size=2")
	assert.Equal(t, int64(3), first.Get("page.totalPages").Int())
	assert.Equal(t, int64(5), first.Get("page.totalElements").Int())
	assert.Len(t, first.Get("_embedded.aggregators").Array(), 2)
	assert.False(t, first.Get("_links.first").Exists())
	assert.False(t, first.Get("_links.prev").Exists())
	assert.Equal(t, srv.URL+"/api/aggregators?page=1&size=2", first.Get("_links.next.href").String())
	assert.Equal(t, srv.URL+"/api/aggregators?page=2&size=2", first.Get("_links.last.href").String())

	_, last := get(t, srv.URL+"/api/aggregators?page=2&size=2")
	assert.Len(t, last.Get("_embedded.aggregators").Array(), 1)
	assert.True(t, last.Get("_links.prev").Exists())
	assert.False(t, last.Get("_links.next").Exists())
	assert.False(t, last.Get("_links.last").Exists())
}

func TestServer_ProfileKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(New("zeta", "alpha", "mid"))
	defer srv.Close()

	_, schema := get(t, srv.URL+"/api/profile/aggregators")
	var keys []string
	schema.Get("properties").ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)
}

func TestServer_ConditionalUpdate(t *testing.T) {
	api := New()
	api.Seed(1)
	srv := httptest.NewServer(api)
	defer srv.Close()

	resp, _ := get(t, srv.URL+"/api/aggregators/1")
	require.Equal(t, `"0"`, resp.Header.Get("ETag"))

	put := func(etag string) int {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/aggregators/1",
			bytes.NewBufferString(`{"name":"renamed","description":"d"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("If-Match", etag)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, put(`"0"`))
	assert.Equal(t, http.StatusPreconditionFailed, put(`"0"`))

	a, ok := api.Store().Get("1")
	require.True(t, ok)
	assert.Equal(t, "renamed", a.Fields["name"])
	assert.Equal(t, 1, a.Version)
}

func TestServer_CreateAndDelete(t *testing.T) {
	api := New()
	srv := httptest.NewServer(api)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/aggregators", "application/json",
		bytes.NewBufferString(`{"name":"n","description":"d"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, srv.URL+"/api/aggregators/1", resp.Header.Get("Location"))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/aggregators/1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, api.Store().Len())
	assert.Equal(t, int64(2), api.Requests())
}

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserClientHeadersAndCookies(t *testing.T) {
	var seen []http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Clone())
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
	}))
	defer server.Close()

	client, err := NewBrowserClient(5*time.Second, "test-agent", "ja-JP")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL + "/page")
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Len(t, seen, 2)
	assert.Equal(t, "test-agent", seen[0].Get("User-Agent"))
	assert.Equal(t, "ja-JP", seen[0].Get("Accept-Language"))
	assert.Empty(t, seen[0].Get("Cookie"))
	assert.Contains(t, seen[1].Get("Cookie"), "session=abc")
}

func TestBrowserClientKeepsRequestHeaders(t *testing.T) {
	var agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client, err := NewBrowserClient(5*time.Second, "default-agent", "")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "explicit")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "explicit", agent)
}

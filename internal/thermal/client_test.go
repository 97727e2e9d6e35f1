package thermal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc(t *testing.T) []byte {
	t.Helper()
	doc, err := json.Marshal(sampleTree())
	require.NoError(t, err)
	return doc
}

func TestClientPollSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(sampleDoc(t))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	snap := c.Poll(context.Background())
	require.NotNil(t, snap)
	assert.InDelta(t, 78.0, snap.MaxTemp, 0.01)
}

func TestClientPollSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.Write(sampleDoc(t))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin", "secret")
	require.NotNil(t, c.Poll(context.Background()))

	assert.True(t, gotOK)
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestClientPollNoAuthWhenUnconfigured(t *testing.T) {
	var sawAuthHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuthHeader = r.Header.Get("Authorization") != ""
		w.Write(sampleDoc(t))
	}))
	defer srv.Close()

	NewClient(srv.URL, "", "").Poll(context.Background())
	assert.False(t, sawAuthHeader)
}

func TestClientPollNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Nil(t, NewClient(srv.URL, "", "").Poll(context.Background()))
}

func TestClientPollMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	assert.Nil(t, NewClient(srv.URL, "", "").Poll(context.Background()))
}

func TestClientPollConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	assert.Nil(t, NewClient(url, "", "").Poll(context.Background()))
}

func TestClientPollCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(sampleDoc(t))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, NewClient(srv.URL, "", "").Poll(ctx))
}

func TestResolveURLOverrideWins(t *testing.T) {
	os.Setenv("THERMAL_URL_OVERRIDE", "http://192.168.1.50:8085/data.json")
	defer os.Unsetenv("THERMAL_URL_OVERRIDE")

	got := ResolveURL("http://localhost:8085/data.json")
	assert.Equal(t, "http://192.168.1.50:8085/data.json", got)
}

func TestResolveURLNonLoopbackVerbatim(t *testing.T) {
	url := "http://10.0.0.5:8085/data.json"
	assert.Equal(t, url, ResolveURL(url))
}

func TestParseNameserver(t *testing.T) {
	conf := "# This file was automatically generated by WSL.\nnameserver 172.29.208.1\n"
	assert.Equal(t, "172.29.208.1", parseNameserver(conf))

	assert.Equal(t, "", parseNameserver("search example.com\n"))
	assert.Equal(t, "", parseNameserver(""))
}

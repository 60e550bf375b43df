package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProberSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL)
	assert.NoError(t, p.Probe(context.Background()))
}

func TestHTTPProberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL)
	err := p.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPProberTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p := NewHTTPProber(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, p.Probe(ctx))
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	// Reserved port with nothing listening
	p := NewHTTPProber("http://127.0.0.1:1")
	assert.Error(t, p.Probe(context.Background()))
}

func TestHTTPProberDefaultURL(t *testing.T) {
	p := NewHTTPProber("")
	assert.Equal(t, DefaultProbeURL, p.url)
}

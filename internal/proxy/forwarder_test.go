package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcgateway/svcgw/internal/backend"
	"github.com/svcgateway/svcgw/internal/util"
)

func newInstance(t *testing.T, rawURL string) *backend.Instance {
	t.Helper()

	inst, err := backend.NewInstance(rawURL)
	require.NoError(t, err)
	return inst
}

func TestForwarder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/42", r.URL.Path)
		assert.Equal(t, "page=1", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)

	r := httptest.NewRequest("GET", "/api/orders/42?page=1", nil)

	resp, err := f.Forward(context.Background(), newInstance(t, srv.URL), r, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte(`{"id":42}`), resp.Body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestForwarder_ForwardsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"name":"widget"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)

	r := httptest.NewRequest("POST", "/api/products", nil)
	resp, err := f.Forward(context.Background(), newInstance(t, srv.URL), r, []byte(`{"name":"widget"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestForwarder_BackendErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)

	r := httptest.NewRequest("GET", "/api/orders", nil)
	resp, err := f.Forward(context.Background(), newInstance(t, srv.URL), r, nil)
	require.NoError(t, err, "error statuses are responses, not forward errors")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestForwarder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewForwarder(20 * time.Millisecond)

	r := httptest.NewRequest("GET", "/api/orders", nil)
	_, err := f.Forward(context.Background(), newInstance(t, srv.URL), r, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrBackendTimeout)
}

func TestForwarder_ConnectionRefused(t *testing.T) {
	f := NewForwarder(time.Second)

	r := httptest.NewRequest("GET", "/api/orders", nil)
	_, err := f.Forward(context.Background(), newInstance(t, "http://127.0.0.1:1"), r, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrBackendError)
}

func TestForwarder_StripsHopByHopHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)

	r := httptest.NewRequest("GET", "/api/orders", nil)
	r.Header.Set("Proxy-Authorization", "secret")

	resp, err := f.Forward(context.Background(), newInstance(t, srv.URL), r, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Keep-Alive"))
}

func TestForwarder_JoinsInstanceBasePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/api/orders", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)

	r := httptest.NewRequest("GET", "/api/orders", nil)
	_, err := f.Forward(context.Background(), newInstance(t, srv.URL+"/v2"), r, nil)
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		err  error
		want Outcome
	}{
		{"2xx is success", &Response{StatusCode: 200}, nil, OutcomeSuccess},
		{"3xx is success", &Response{StatusCode: 302}, nil, OutcomeSuccess},
		{"4xx is success", &Response{StatusCode: 404}, nil, OutcomeSuccess},
		{"429 is success", &Response{StatusCode: 429}, nil, OutcomeSuccess},
		{"500 is failure", &Response{StatusCode: 500}, nil, OutcomeFailure},
		{"503 is failure", &Response{StatusCode: 503}, nil, OutcomeFailure},
		{"transport error is failure", nil, errors.New("dial refused"), OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.resp, tt.err))
		})
	}
}

package executor

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ordercore/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *HTTP {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	h, err := NewHTTP(srv.Client(), HTTPConfig{Endpoint: srv.URL + "/", Token: "secret"})
	require.NoError(t, err)
	return h
}

func TestNewHTTPEmptyEndpoint(t *testing.T) {
	_, err := NewHTTP(nil, HTTPConfig{Endpoint: "  "})
	assert.True(t, errors.Is(err, exception.ErrExecutorEndpoint))
}

func TestHTTPSubmit(t *testing.T) {
	var got orderPayload
	h := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathOrders, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, sonic.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"ok":true,"code":0,"order_id":"MT5-7781"}`))
	})

	res := h.Submit(t.Context(), validRequest())
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "MT5-7781", res.BrokerOrderID)
	assert.Equal(t, "A1", got.OrderID)
	assert.Equal(t, "BUY", got.Side)
	assert.Equal(t, "0.01", got.Volume)
	assert.Equal(t, "93000.932238", got.StopLoss)
	assert.Equal(t, "95000.3238237", got.TakeProfit)
}

func TestHTTPSubmitFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		reason Reason
		code   int
	}{
		{"rejected body", http.StatusOK, `{"ok":false,"code":10019,"message":"no money"}`, ReasonRejected, 10019},
		{"bad request", http.StatusBadRequest, `{"ok":false,"message":"volume"}`, ReasonInvalidParams, CodeInvalidParams},
		{"server error", http.StatusBadGateway, `upstream down`, ReasonConnectivity, CodeConnectivity},
		{"garbage", http.StatusOK, `not json`, ReasonConnectivity, CodeConnectivity},
		{"html not found", http.StatusNotFound, `<html><body>404 Not Found</body></html>`, ReasonRejected, CodeInvalidParams},
		{"empty forbidden", http.StatusForbidden, ``, ReasonRejected, CodeInvalidParams},
		{"missing id", http.StatusOK, `{"ok":true}`, ReasonRejected, CodeInvalidParams},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			res := h.Submit(t.Context(), validRequest())
			assert.False(t, res.OK)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, tc.code, res.Code)
		})
	}
}

func TestHTTPSubmitInvalidSkipsBridge(t *testing.T) {
	called := false
	h := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	req := validRequest()
	req.Volume = req.Volume.Neg()
	res := h.Submit(t.Context(), req)
	assert.Equal(t, ReasonInvalidParams, res.Reason)
	assert.False(t, called)
}

func TestHTTPVenueSettings(t *testing.T) {
	h := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathMarginType:
			_, _ = w.Write([]byte(`{"ok":false,"code":-4046,"message":"No need to change margin type."}`))
		case pathLeverage:
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	})

	res := h.SetMarginType(t.Context(), "BTCUSDT", "isolated")
	assert.Equal(t, CodeMarginTypeUnchanged, res.Code)
	assert.True(t, h.SetLeverage(t.Context(), "BTCUSDT", 5).OK)
}

func TestHTTPClosed(t *testing.T) {
	h := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"order_id":"x"}`))
	})
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	res := h.Submit(t.Context(), validRequest())
	assert.Equal(t, ReasonConnectivity, res.Reason)
}

func TestHTTPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h, err := NewHTTP(nil, HTTPConfig{Endpoint: url})
	require.NoError(t, err)
	res := h.Submit(t.Context(), validRequest())
	assert.Equal(t, ReasonConnectivity, res.Reason)
	assert.Equal(t, CodeConnectivity, res.Code)
}

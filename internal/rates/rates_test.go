package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestHTTPServiceFetch(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"result":"success","rates":{"USD":1,"EUR":0.92,"NGN":1530.5}}`))
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, nil, 0)
	rates, err := svc.USDRates(context.Background())
	require.NoError(t, err)
	require.True(t, rates["EUR"].Equal(decimal.RequireFromString("0.92")))
	require.True(t, rates["NGN"].Equal(decimal.RequireFromString("1530.5")))
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPServiceProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error"}`))
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, nil, 0)
	_, err := svc.USDRates(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestStatic(t *testing.T) {
	svc := Static{"USD": decimal.NewFromInt(1)}
	rates, err := svc.USDRates(context.Background())
	require.NoError(t, err)
	require.True(t, rates["USD"].Equal(decimal.NewFromInt(1)))

	_, err = Static{}.USDRates(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/falachefe/consultant/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/send/text", r.URL.Path)
		assert.Equal(t, "instance-token", r.Header.Get("token"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5511999999999", body["number"])
		assert.Equal(t, "Seu saldo é R$ 100,00", body["text"])
		assert.Equal(t, true, body["readchat"])

		_, _ = w.Write([]byte(`{"messageid":"3EB0ABC","status":"Pending"}`))
	}))
	defer srv.Close()

	m := metrics.NewCollector()
	gw := NewUAZAPI(srv.URL, "instance-token", Options{Timeout: time.Second, Metrics: m})
	out := gw.Send(context.Background(), "+55 (11) 99999-9999", "Seu saldo é R$ 100,00")

	assert.True(t, out.Attempted)
	assert.True(t, out.Succeeded)
	require.NotNil(t, out.ChannelMessageID)
	assert.Equal(t, "3EB0ABC", *out.ChannelMessageID)
	assert.Equal(t, "Pending", out.Status)
	assert.Nil(t, out.Error)
	require.NotNil(t, m.Snapshot().Delivery)
	assert.Equal(t, int64(1), m.Snapshot().Delivery.Count)
}

func TestSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	m := metrics.NewCollector()
	out := NewUAZAPI(srv.URL, "bad", Options{Metrics: m}).Send(context.Background(), "5511999999999", "oi")

	assert.True(t, out.Attempted)
	assert.False(t, out.Succeeded)
	assert.Equal(t, StatusFailed, out.Status)
	require.NotNil(t, out.Error)
	assert.Contains(t, *out.Error, "delivery failed")
	assert.Contains(t, *out.Error, "invalid token")
	assert.Equal(t, int64(1), m.Snapshot().Counters[metrics.CounterDeliveryFailed])
}

func TestSendRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"messageid":"m2"}`))
	}))
	defer srv.Close()

	out := NewUAZAPI(srv.URL, "t", Options{Attempts: 3}).Send(context.Background(), "5511999999999", "oi")
	assert.True(t, out.Succeeded)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendWithoutRecipient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	out := NewUAZAPI(srv.URL, "t", Options{}).Send(context.Background(), "  ", "oi")
	assert.False(t, out.Attempted)
	assert.False(t, out.Succeeded)
	assert.Equal(t, StatusSkipped, out.Status)
	require.NotNil(t, out.Error)
	assert.Contains(t, *out.Error, "no recipient")
	assert.Zero(t, calls.Load())
}

func TestNormalizeNumber(t *testing.T) {
	tests := map[string]string{
		"5511999999999":                "5511999999999",
		"+55 11 99999-9999":            "5511999999999",
		"5511999999999@s.whatsapp.net": "5511999999999",
		"abc":                          "",
		"":                             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeNumber(in), in)
	}
}

func TestMaskNumber(t *testing.T) {
	assert.Equal(t, "*********9999", maskNumber("5511999999999"))
	assert.Equal(t, "123", maskNumber("123"))
}

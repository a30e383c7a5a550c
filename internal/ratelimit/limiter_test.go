package ratelimit

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func requestFrom(remote, commonName string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/sticky", nil)
	r.RemoteAddr = remote
	if commonName != "" {
		cert := &x509.Certificate{Subject: pkix.Name{CommonName: commonName}}
		r.TLS = &tls.ConnectionState{VerifiedChains: [][]*x509.Certificate{{cert}}}
	}
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestMiddleware_BurstThenLimited(t *testing.T) {
	h := Middleware(New(0.001, 2), noContent())

	assert.Equal(t, http.StatusNoContent, serve(h, requestFrom("10.0.0.1:1000", "")).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, requestFrom("10.0.0.1:1001", "")).Code)

	rec := serve(h, requestFrom("10.0.0.1:1002", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 1)
}

func TestMiddleware_PerClient(t *testing.T) {
	l := New(0.001, 1)
	h := Middleware(l, noContent())

	assert.Equal(t, http.StatusNoContent, serve(h, requestFrom("10.0.0.1:1000", "laptop")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, requestFrom("10.0.0.2:1000", "laptop")).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, requestFrom("10.0.0.1:1000", "desktop")).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, requestFrom("10.0.0.3:1000", "")).Code)
	assert.Equal(t, 3, l.Clients())
}

func TestMiddleware_NilLimiter(t *testing.T) {
	h := Middleware(nil, noContent())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusNoContent, serve(h, requestFrom("10.0.0.1:1000", "")).Code)
	}
}

func TestClientKey(t *testing.T) {
	assert.Equal(t, "cn:laptop", ClientKey(requestFrom("10.0.0.1:1000", "laptop")))
	assert.Equal(t, "ip:10.0.0.1", ClientKey(requestFrom("10.0.0.1:1000", "")))
	assert.Equal(t, "ip:not-an-addr", ClientKey(requestFrom("not-an-addr", "")))
}

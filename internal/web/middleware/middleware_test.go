package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/fusion/internal/config"
)

func echoRemoteAddr() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.RemoteAddr))
	})
}

// ============================================================================
// TrustedRealIP
// ============================================================================

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies configured", nil, "1.2.3.4:5000", map[string]string{"X-Real-IP": "9.9.9.9"}, "1.2.3.4:5000"},
		{"untrusted source", []string{"10.0.0.0/8"}, "1.2.3.4:5000", map[string]string{"X-Real-IP": "9.9.9.9"}, "1.2.3.4:5000"},
		{"trusted real ip", []string{"10.0.0.0/8"}, "10.1.1.1:5000", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
		{"trusted forwarded for", []string{"10.0.0.1"}, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.0.0.1"}, "8.8.8.8"},
		{"invalid header ignored", []string{"10.0.0.0/8"}, "10.1.1.1:5000", map[string]string{"X-Real-IP": "nope"}, "10.1.1.1:5000"},
		{"bad cidr skipped", []string{"garbage"}, "10.1.1.1:5000", map[string]string{"X-Real-IP": "9.9.9.9"}, "10.1.1.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := TrustedRealIP(tt.trusted)(echoRemoteAddr())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

// ============================================================================
// APIKeyAuth
// ============================================================================

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		cfg  config.SecurityConfig
		key  string
		want int
	}{
		{"disabled", config.SecurityConfig{}, "", http.StatusNoContent},
		{"missing key", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, "", http.StatusUnauthorized},
		{"wrong key", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, "k2", http.StatusForbidden},
		{"second key", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}, "k2", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			h := APIKeyAuth(&cfg)(ok)
			req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// ============================================================================
// Logger
// ============================================================================

func TestLogger_RecordsStatusAndBytes(t *testing.T) {
	var got *statusRecorder
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = w.(*statusRecorder)
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, got.status)
	assert.Equal(t, len("short and stout"), got.bytes)
	assert.Equal(t, rec, got.Unwrap())
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestAllowSubnet(t *testing.T) {
	subnet, err := ParseSubnet("192.168.1.0/24")
	require.NoError(t, err)
	h := AllowSubnet(subnet)(ok)

	tests := []struct {
		remote string
		want   int
	}{
		{"192.168.1.20:51000", http.StatusNoContent},
		{"192.168.2.20:51000", http.StatusForbidden},
		{"192.168.1.7", http.StatusNoContent},
		{"not-an-ip", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAllowSubnet_NoRestriction(t *testing.T) {
	subnet, err := ParseSubnet("")
	require.NoError(t, err)
	assert.Nil(t, subnet)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	AllowSubnet(subnet)(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestParseSubnet_Invalid(t *testing.T) {
	_, err := ParseSubnet("10.0.0.0/99")
	assert.Error(t, err)
}

func TestNoStoreAndLogger(t *testing.T) {
	rec := httptest.NewRecorder()
	Logger(NoStore(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

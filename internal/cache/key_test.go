package cache

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/api/products?page=1&size=10", nil)
	r2 := httptest.NewRequest("GET", "/api/products?page=1&size=10", nil)

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprint_QueryOrderIrrelevant(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/api/products?page=1&size=10", nil)
	r2 := httptest.NewRequest("GET", "/api/products?size=10&page=1", nil)

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprint_Distinguishes(t *testing.T) {
	base := httptest.NewRequest("GET", "/api/products?page=1", nil)

	tests := []struct {
		name   string
		method string
		target string
	}{
		{"different path", "GET", "/api/orders?page=1"},
		{"different query value", "GET", "/api/products?page=2"},
		{"extra parameter", "GET", "/api/products?page=1&size=10"},
		{"different method", "HEAD", "/api/products?page=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := httptest.NewRequest(tt.method, tt.target, nil)
			assert.NotEqual(t, Fingerprint(base), Fingerprint(other))
		})
	}
}

func TestFingerprint_RepeatedValuesSorted(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/api/products?tag=b&tag=a", nil)
	r2 := httptest.NewRequest("GET", "/api/products?tag=a&tag=b", nil)

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

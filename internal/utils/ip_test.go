package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowedIP(t *testing.T) {
	nets, err := ParseCIDRs([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, nets, 3)

	assert.True(t, IsAllowedIP("10.1.2.3", nets))
	assert.True(t, IsAllowedIP("192.168.1.5", nets))
	assert.True(t, IsAllowedIP("::1", nets))
	assert.False(t, IsAllowedIP("192.168.1.6", nets))
	assert.False(t, IsAllowedIP("not-an-ip", nets))
}

func TestParseCIDRsRejectsGarbage(t *testing.T) {
	_, err := ParseCIDRs([]string{"10.0.0.0/40"})
	assert.Error(t, err)
	_, err = ParseCIDRs([]string{"example.com"})
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:5123"
	assert.Equal(t, "203.0.113.7", ClientIP(r))

	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", ClientIP(r))
}

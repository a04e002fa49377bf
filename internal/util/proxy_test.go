package util

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyFunc_PerScheme(t *testing.T) {
	proxy, err := NewProxyFunc("http://plain:3128", "http://secure:3129")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, "https://api.example.gov/v1/applications", nil)
	u, err := proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "secure:3129", u.Host)

	req, _ = http.NewRequest(http.MethodPost, "http://localhost:1550/v1/applications", nil)
	u, err = proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "plain:3128", u.Host)
}

func TestNewProxyFunc_HTTPOnlyCoversHTTPS(t *testing.T) {
	proxy, err := NewProxyFunc("http://plain:3128", "")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, "https://api.example.gov", nil)
	u, err := proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "plain:3128", u.Host)
}

func TestNewProxyFunc_InvalidURL(t *testing.T) {
	_, err := NewProxyFunc("http://bad host:3128", "")
	assert.Error(t, err)
}

// internal/network/httpclient_test.go
package network

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/metagraph/internal/config"
)

func TestNewDefaultClientConfig(t *testing.T) {
	cfg := NewDefaultClientConfig()

	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, cfg.MaxIdleConnsPerHost)
	assert.Zero(t, cfg.RequestTimeout, "request deadlines come from the caller's context")
	assert.True(t, cfg.ForceHTTP2, "HTTP/2 should be preferred by default")
	assert.NotNil(t, cfg.Logger)
}

func TestClientConfigFromNetwork(t *testing.T) {
	t.Run("should map configured values", func(t *testing.T) {
		netCfg := config.NetworkConfig{
			DialTimeout:         2 * time.Second,
			TLSHandshakeTimeout: 3 * time.Second,
			IdleConnTimeout:     4 * time.Second,
			MaxIdleConnsPerHost: 9,
			IgnoreTLSErrors:     true,
			ProxyURL:            "http://proxy.internal:3128",
		}
		cc, err := ClientConfigFromNetwork(netCfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, cc.DialTimeout)
		assert.Equal(t, 3*time.Second, cc.TLSHandshakeTimeout)
		assert.Equal(t, 4*time.Second, cc.IdleConnTimeout)
		assert.Equal(t, 9, cc.MaxIdleConnsPerHost)
		assert.True(t, cc.IgnoreTLSErrors)
		require.NotNil(t, cc.ProxyURL)
		assert.Equal(t, "proxy.internal:3128", cc.ProxyURL.Host)
	})

	t.Run("should keep defaults for zero values", func(t *testing.T) {
		cc, err := ClientConfigFromNetwork(config.NetworkConfig{}, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultDialTimeout, cc.DialTimeout)
		assert.Nil(t, cc.ProxyURL)
	})

	t.Run("should reject an invalid proxy URL", func(t *testing.T) {
		_, err := ClientConfigFromNetwork(config.NetworkConfig{ProxyURL: "://bad"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network.proxy_url")
	})
}

func TestConfigureTLS(t *testing.T) {
	t.Run("should apply secure defaults", func(t *testing.T) {
		tlsConfig := configureTLS(NewDefaultClientConfig())
		assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
		assert.False(t, tlsConfig.InsecureSkipVerify)
		assert.NotNil(t, tlsConfig.ClientSessionCache)
	})

	t.Run("should clone a custom config and apply the override", func(t *testing.T) {
		custom := &tls.Config{ServerName: "custom.sni"}
		cfg := NewDefaultClientConfig()
		cfg.TLSConfig = custom
		cfg.IgnoreTLSErrors = true

		tlsConfig := configureTLS(cfg)
		assert.Equal(t, "custom.sni", tlsConfig.ServerName)
		assert.True(t, tlsConfig.InsecureSkipVerify)
		assert.False(t, custom.InsecureSkipVerify, "the caller's config must not be modified")
	})
}

func TestNewHTTPTransport(t *testing.T) {
	t.Run("should configure HTTP/2 when forced", func(t *testing.T) {
		transport := NewHTTPTransport(NewDefaultClientConfig())
		assert.True(t, transport.ForceAttemptHTTP2)
		assert.Contains(t, transport.TLSClientConfig.NextProtos, "h2")
	})

	t.Run("should pin HTTP/1.1 when HTTP/2 is disabled", func(t *testing.T) {
		cfg := NewDefaultClientConfig()
		cfg.ForceHTTP2 = false
		transport := NewHTTPTransport(cfg)
		assert.Equal(t, []string{"http/1.1"}, transport.TLSClientConfig.NextProtos)
	})

	t.Run("should tolerate a nil config", func(t *testing.T) {
		assert.NotNil(t, NewHTTPTransport(nil))
	})
}

func TestNewClient_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := NewClient(nil)
	defer client.CloseIdleConnections()

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

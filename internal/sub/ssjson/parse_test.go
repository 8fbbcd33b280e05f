package ssjson

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

func TestParseSubscription(t *testing.T) {
	body := `{
	  "version": 1,
	  "configs": [
	    {"remarks": "HK 01", "server": "hk.example.com", "server_port": 8388, "method": "aes-256-gcm", "password": "p1"},
	    {"remarks": "JP 01", "server": "jp.example.com", "server_port": "443", "method": "chacha20-ietf-poly1305", "password": "p2",
	     "plugin": "obfs-local", "plugin_opts": "obfs=http;obfs-host=cdn.example.com"},
	    {"remarks": "US 01", "server": "us.example.com", "server_port": 443, "method": "aes-128-gcm", "password": "p3",
	     "plugin": "obfs-local", "plugin_opts": "obfs=tls"}
	  ]
	}`

	proxies, err := ParseSubscription("https://example.com/sub", body, model.Bool(false))
	require.NoError(t, err)
	require.Len(t, proxies, 3)

	assert.Equal(t, "HK 01", proxies[0].Name)
	assert.Equal(t, 8388, proxies[0].Port)
	assert.Empty(t, proxies[0].PluginName)

	assert.Equal(t, 443, proxies[1].Port)
	assert.Equal(t, "obfs-local", proxies[1].PluginName)
	assert.Equal(t, []model.KV{{Key: "obfs", Value: "http"}, {Key: "obfs-host", Value: "cdn.example.com"}}, proxies[1].PluginOpts)

	assert.Equal(t, []model.KV{{Key: "obfs", Value: "tls"}, {Key: "obfs-host", Value: "www.bing.com"}}, proxies[2].PluginOpts)

	for _, p := range proxies {
		require.NotNil(t, p.UDPRelay)
		assert.False(t, *p.UDPRelay)
	}
}

func TestParseSubscription_InvalidFormat(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`[]`,
		`{"servers": []}`,
		`{"configs": {}}`,
	}
	for _, body := range cases {
		_, err := ParseSubscription("", body, nil)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("body %q: expected *ParseError, got %v", body, err)
		}
		if pe.AppError.Message != "Invalid ShadowsocksJSONConfig format" {
			t.Fatalf("body %q: message=%q", body, pe.AppError.Message)
		}
	}
}

func TestParseSubscription_BadEntry(t *testing.T) {
	cases := map[string]string{
		"port range":  `{"configs":[{"server":"a","server_port":70000,"method":"m","password":"p"}]}`,
		"port string": `{"configs":[{"server":"a","server_port":"http","method":"m","password":"p"}]}`,
		"no server":   `{"configs":[{"server_port":1,"method":"m","password":"p"}]}`,
		"not object":  `{"configs":[1]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSubscription("", body, nil)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 1, pe.AppError.Line)
			assert.Equal(t, "parse_sub", pe.AppError.Stage)
		})
	}
}

func TestParseSubscription_EmptyConfigs(t *testing.T) {
	proxies, err := ParseSubscription("", `{"configs":[]}`, nil)
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

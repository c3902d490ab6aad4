package apps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchRedirectURIStrict(t *testing.T) {
	tests := []struct {
		name       string
		supplied   string
		registered string
		want       bool
	}{
		{"identical", "https://app.example.com/cb", "https://app.example.com/cb", true},
		{"scheme case normalized", "HTTPS://app.example.com/cb", "https://app.example.com/cb", true},
		{"host case differs", "http://X/cb?x=1", "http://x/cb?x=1", false},
		{"query case differs", "http://x/cb?X=1", "http://x/cb?x=1", false},
		{"path differs", "https://app.example.com/cb2", "https://app.example.com/cb", false},
		{"trailing slash differs", "https://app.example.com/cb/", "https://app.example.com/cb", false},
		{"port differs", "https://app.example.com:8443/cb", "https://app.example.com/cb", false},
		{"empty supplied", "", "https://app.example.com/cb", false},
		{"relative supplied", "/cb", "https://app.example.com/cb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchRedirectURI(tt.supplied, tt.registered, false))
			// Strict failures stay failures for native apps unless the
			// loopback rule applies, which none of these pairs trigger.
			if !tt.want {
				assert.Equal(t, tt.want, MatchRedirectURI(tt.supplied, tt.registered, true))
			}
		})
	}
}

func TestMatchRedirectURIRelaxedLoopback(t *testing.T) {
	tests := []struct {
		name       string
		supplied   string
		registered string
		want       bool
	}{
		{"ephemeral port on loopback", "http://127.0.0.1:8080/cb", "http://127.0.0.1/cb", true},
		{"https loopback", "https://127.0.0.1:8443/cb", "https://127.0.0.1/cb", true},
		{"ipv6 loopback", "http://[::1]:8080/cb", "http://[::1]/cb", true},
		{"registered explicit default port", "http://127.0.0.1:8080/cb", "http://127.0.0.1:80/cb", true},
		{"query carried", "http://127.0.0.1:8080/cb?state=1", "http://127.0.0.1/cb?state=1", true},

		{"scheme mismatch", "https://127.0.0.1:8080/cb", "http://127.0.0.1/cb", false},
		{"supplied default port", "http://127.0.0.1:80/cb", "http://127.0.0.1/cb", false},
		{"supplied no port", "http://127.0.0.1/cb", "http://127.0.0.1/cb2", false},
		{"registered non-default port", "http://127.0.0.1:8080/cb", "http://127.0.0.1:9090/cb", false},
		{"non-loopback host", "http://192.168.1.5:8080/cb", "http://192.168.1.5/cb", false},
		{"hostname not an ip", "http://localhost:8080/cb", "http://localhost/cb", false},
		{"host mismatch", "http://127.0.0.1:8080/cb", "http://[::1]/cb", false},
		{"path differs", "http://127.0.0.1:8080/cb2", "http://127.0.0.1/cb", false},
		{"query differs", "http://127.0.0.1:8080/cb?a=1", "http://127.0.0.1/cb?a=2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchRedirectURI(tt.supplied, tt.registered, true))

			// The relaxation never applies outside native applications.
			if tt.supplied != tt.registered {
				assert.False(t, MatchRedirectURI(tt.supplied, tt.registered, false))
			}
		})
	}
}

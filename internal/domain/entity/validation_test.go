package entity

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURLFormat(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https article link", url: "https://example.com/articles/async-io"},
		{name: "http feed link", url: "http://example.com/feed.xml"},
		{name: "instance with port", url: "https://fosstodon.org:8443/api/v1/timelines/public"},
		{name: "reddit listing with query", url: "https://www.reddit.com/r/programming/hot.json?limit=25&after=t3_abc"},
		{name: "link with fragment", url: "https://example.com/post#comments"},
		{name: "empty", url: "", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com/feed", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "javascript scheme", url: "javascript:alert(1)", wantErr: true},
		{name: "scheme only", url: "https://", wantErr: true},
		{name: "bare host", url: "example.com", wantErr: true},
		{name: "malformed", url: "ht!tp://example.com", wantErr: true},
		{name: "over length cap", url: "https://example.com/" + strings.Repeat("a", 2050), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURLFormat(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateURL_BlocksPrivateTargets(t *testing.T) {
	// These hosts resolve without external DNS, so the SSRF check is
	// exercised deterministically.
	tests := []struct {
		name string
		url  string
	}{
		{name: "localhost", url: "http://localhost/feed"},
		{name: "loopback", url: "http://127.0.0.1/feed"},
		{name: "rfc1918 ten-net", url: "http://10.0.0.1/status"},
		{name: "rfc1918 192.168", url: "http://192.168.1.1/admin"},
		{name: "rfc1918 172.16", url: "http://172.16.0.1/"},
		{name: "cloud metadata endpoint", url: "http://169.254.169.254/latest/meta-data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			assert.Error(t, err)

			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestValidateURL_FormatErrorsAreValidationErrors(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "https://", "https://example.com/" + strings.Repeat("a", 2050)} {
		err := ValidateURL(raw)
		assert.Error(t, err, "url %q", raw)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr, "url %q", raw)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		name      string
		ip        string
		isPrivate bool
	}{
		{name: "ipv4 loopback", ip: "127.0.0.1", isPrivate: true},
		{name: "ipv4 loopback high", ip: "127.200.3.4", isPrivate: true},
		{name: "ipv6 loopback", ip: "::1", isPrivate: true},
		{name: "ipv4 link-local", ip: "169.254.1.1", isPrivate: true},
		{name: "metadata address", ip: "169.254.169.254", isPrivate: true},
		{name: "ipv6 link-local", ip: "fe80::1", isPrivate: true},
		{name: "ten-net low", ip: "10.0.0.0", isPrivate: true},
		{name: "ten-net high", ip: "10.255.255.255", isPrivate: true},
		{name: "172.16 low", ip: "172.16.0.0", isPrivate: true},
		{name: "172.16 high", ip: "172.31.255.255", isPrivate: true},
		{name: "192.168 anywhere", ip: "192.168.44.7", isPrivate: true},
		{name: "public dns", ip: "8.8.8.8", isPrivate: false},
		{name: "public web host", ip: "93.184.216.34", isPrivate: false},
		{name: "public ipv6", ip: "2001:4860:4860::8888", isPrivate: false},
		{name: "below ten-net", ip: "9.255.255.255", isPrivate: false},
		{name: "above ten-net", ip: "11.0.0.0", isPrivate: false},
		{name: "below 172.16", ip: "172.15.255.255", isPrivate: false},
		{name: "above 172.16 block", ip: "172.32.0.0", isPrivate: false},
		{name: "below 192.168", ip: "192.167.255.255", isPrivate: false},
		{name: "above 192.168", ip: "192.169.0.0", isPrivate: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP: %s", tt.ip)
			}

			assert.Equal(t, tt.isPrivate, isPrivateIP(ip))
		})
	}
}

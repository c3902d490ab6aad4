package apps

import (
	"net"
	"net/url"
	"strings"
)

// MatchRedirectURI reports whether a supplied redirect URI matches a
// registered one.
//
// The primary rule is ordinal string equality, case and encoding sensitive;
// scheme case alone is normalized away. When that fails and native is true, a
// single relaxed rule applies, meant for loopback redirects on dynamically
// assigned ports: the supplied URI uses a non-default port where the
// registered one uses its scheme's default port, both hosts are loopback
// addresses, schemes are both http or both https, and user-info, host
// (case-insensitively), path, query, and fragment all match ordinally. No
// other relaxation is permitted.
func MatchRedirectURI(supplied, registered string, native bool) bool {
	if supplied == registered {
		return true
	}

	su, err := url.Parse(supplied)
	if err != nil || !su.IsAbs() || su.Host == "" {
		return false
	}
	ru, err := url.Parse(registered)
	if err != nil || !ru.IsAbs() || ru.Host == "" {
		return false
	}

	// Parsing lowercases the scheme, so this catches pairs differing only in
	// scheme case.
	if su.String() == ru.String() {
		return true
	}

	if !native {
		return false
	}
	return loopbackMatch(su, ru)
}

func loopbackMatch(supplied, registered *url.URL) bool {
	def := defaultPort(supplied.Scheme)
	if def == "" || supplied.Scheme != registered.Scheme {
		return false
	}

	sp := supplied.Port()
	if sp == "" || sp == def {
		return false
	}
	if rp := registered.Port(); rp != "" && rp != def {
		return false
	}

	if !isLoopback(supplied.Hostname()) || !isLoopback(registered.Hostname()) {
		return false
	}
	if !strings.EqualFold(supplied.Hostname(), registered.Hostname()) {
		return false
	}

	return supplied.User.String() == registered.User.String() &&
		supplied.Path == registered.Path &&
		supplied.RawQuery == registered.RawQuery &&
		supplied.Fragment == registered.Fragment
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func isLoopback(hostname string) bool {
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

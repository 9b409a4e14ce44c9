package solr

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultPort is assumed when a host is given without one.
const DefaultPort = "8983"

// NormalizeHost turns "host", "host:port" or a full URL into a base URL
// without a trailing slash or /solr path. The default port is only added
// when no scheme was given.
func NormalizeHost(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("solr host is empty")
	}
	bare := !strings.Contains(raw, "://")
	if bare {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse solr host %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in solr host", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("solr host %q has no hostname", raw)
	}
	if bare && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), DefaultPort)
	}
	p := strings.TrimRight(u.Path, "/")
	p = strings.TrimSuffix(p, "/solr")
	u.Path = p
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

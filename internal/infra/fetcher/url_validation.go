// Package fetcher retrieves sonde reports and archive listings over HTTP.
package fetcher

import (
	"fmt"
	"net"
	"net/url"
)

// ValidateSourceURL performs the syntactic checks on a report or archive URL:
// it must parse, use http or https, and name a host. It does not touch the
// network.
func ValidateSourceURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: parse error: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme '%s' not allowed (only http/https)", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: empty hostname", ErrInvalidURL)
	}
	return u, nil
}

// validateURL runs ValidateSourceURL and, when denyPrivateIPs is set,
// resolves the host and rejects loopback, private and link-local targets.
func validateURL(urlStr string, denyPrivateIPs bool) error {
	u, err := ValidateSourceURL(urlStr)
	if err != nil {
		return err
	}
	if !denyPrivateIPs {
		return nil
	}

	hostname := u.Hostname()
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %v", ErrInvalidURL, hostname, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: hostname '%s' resolves to private IP %s", ErrPrivateIP, hostname, ip.String())
		}
	}
	return nil
}

// isPrivateIP reports whether ip is loopback (127.0.0.0/8, ::1), private
// (RFC 1918, fc00::/7) or link-local (169.254.0.0/16, fe80::/10).
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

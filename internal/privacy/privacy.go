// Package privacy scrubs identifying details from messages before they leave
// the process, either as telemetry events or as logged errors.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// URL pattern for finding URLs in text. Audio servers are reached over
	// tcp and unix sockets as well as the status endpoint's http.
	urlPattern = regexp.MustCompile(`\b(?:https?|tcp|unix)://\S+`)

	// Sentry style DSNs carry a key before the host
	dsnPattern = regexp.MustCompile(`https?://[0-9a-fA-F]{16,}@\S+`)

	homePattern = regexp.MustCompile(`(/home/|/Users/|[A-Za-z]:\\Users\\)[^/\\\s]+`)

	hexKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)

	ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// ScrubMessage removes or anonymizes sensitive information from a message.
// DSNs are redacted first so their keys never reach the URL hasher.
func ScrubMessage(message string) string {
	scrubbed := dsnPattern.ReplaceAllString(message, "[DSN_REDACTED]")
	scrubbed = urlPattern.ReplaceAllStringFunc(scrubbed, AnonymizeURL)
	scrubbed = homePattern.ReplaceAllString(scrubbed, "${1}[USER]")
	return hexKeyPattern.ReplaceAllString(scrubbed, "[KEY_REDACTED]")
}

// AnonymizeURL converts a URL to a stable hash that keeps the scheme, the
// kind of host and the port, so two reports about the same server still
// group together.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var parts []string
	if parsed.Scheme != "" {
		parts = append(parts, parsed.Scheme)
	}
	if host := parsed.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if parsed.Port() != "" {
		parts = append(parts, "port-"+parsed.Port())
	}
	if parsed.Path != "" && parsed.Path != "/" {
		parts = append(parts, anonymizePath(parsed.Path))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	prefix := "url"
	if parsed.Scheme != "" {
		prefix = parsed.Scheme
	}
	return fmt.Sprintf("%s-%x", prefix, hash[:12])
}

// categorizeHost anonymizes hostnames while preserving useful categorization
func categorizeHost(host string) string {
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case isIPAddress(host):
		return "public-ip"
	}

	// For domain names, preserve the TLD only
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "unknown-host"
}

// anonymizePath keeps the depth of a path and hashes each segment
func anonymizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}

	var segments []string
	for _, segment := range strings.Split(path, "/") {
		switch {
		case segment == "":
			continue
		case isNumeric(segment):
			segments = append(segments, "numeric")
		default:
			hash := sha256.Sum256([]byte(segment))
			segments = append(segments, fmt.Sprintf("seg-%x", hash[:4]))
		}
	}
	return strings.Join(segments, "/")
}

func isPrivateIP(host string) bool {
	privateRanges := []string{
		"10.", "172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.", "172.22.", "172.23.",
		"172.24.", "172.25.", "172.26.", "172.27.", "172.28.", "172.29.", "172.30.", "172.31.",
		"192.168.", "169.254.",
		"fc00:", "fd00:", "fe80:",
	}

	host = strings.ToLower(host)
	for _, prefix := range privateRanges {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

func isIPAddress(host string) bool {
	if ipv4Pattern.MatchString(host) {
		return true
	}
	// IPv6
	return strings.Contains(host, ":")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

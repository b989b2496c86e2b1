package serverdetails

import (
	"net"
	"strings"
)

const (
	localhostDisplayName = "localhost"
	wildcardIPv4Address  = "0.0.0.0"
	wildcardIPv6Address  = "::"
	loopbackIPv4Address  = "127.0.0.1"
	schemeSeparator      = "://"
	defaultHTTPPort      = "80"
	defaultHTTPSPort     = "443"
	schemeHTTP           = "http"
	schemeHTTPS          = "https"
)

// ServingAddressFormatter renders listener and impersonated addresses for log output.
type ServingAddressFormatter struct{}

// NewServingAddressFormatter constructs a ServingAddressFormatter.
func NewServingAddressFormatter() ServingAddressFormatter {
	return ServingAddressFormatter{}
}

// FormatHostAndPortForLogging shows wildcard and loopback binds as localhost.
func (formatter ServingAddressFormatter) FormatHostAndPortForLogging(bindAddress string, port string) string {
	host := strings.TrimSpace(bindAddress)
	switch host {
	case "", wildcardIPv4Address, wildcardIPv6Address, loopbackIPv4Address:
		host = localhostDisplayName
	}
	return net.JoinHostPort(host, port)
}

// FormatURLForLogging joins a scheme with the display form of the bind address.
func (formatter ServingAddressFormatter) FormatURLForLogging(scheme string, bindAddress string, port string) string {
	return normalizeScheme(scheme) + schemeSeparator + formatter.FormatHostAndPortForLogging(bindAddress, port)
}

// FormatDomainURL is the URL a client uses to reach an impersonated domain. The port is
// omitted when it is the scheme default.
func (formatter ServingAddressFormatter) FormatDomainURL(scheme string, domain string, port string) string {
	normalizedScheme := normalizeScheme(scheme)
	host := strings.TrimSpace(domain)
	if (normalizedScheme == schemeHTTP && port == defaultHTTPPort) || (normalizedScheme == schemeHTTPS && port == defaultHTTPSPort) || port == "" {
		return normalizedScheme + schemeSeparator + host + "/"
	}
	return normalizedScheme + schemeSeparator + net.JoinHostPort(host, port) + "/"
}

func normalizeScheme(scheme string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(scheme)), schemeSeparator)
}

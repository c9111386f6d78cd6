// Package cors builds the CORS layer: common methods and headers plus
// localhost are always allowed, with additional origins and headers
// supplied by configuration.
package cors

import (
	"net"
	"net/url"

	"github.com/rs/cors"
)

// Config extends the built-in allowances.
type Config struct {
	// Origins allowed in addition to localhost, matched by exact
	// scheme, host, and port.
	AdditionalAllowedOrigins []string
	// Request headers allowed in addition to the base set.
	AdditionalAllowedHeaders []string
	// Response headers exposed in addition to the base set.
	AdditionalExposedHeaders []string
}

// New builds the CORS middleware. Localhost is allowed regardless of
// scheme or port so local development needs no configuration.
func New(config Config) *cors.Cors {
	allowedHeaders := append([]string{"Authorization", "Accept", "Content-Type"}, config.AdditionalAllowedHeaders...)
	exposedHeaders := append([]string{"Authorization", "Content-Encoding", "Content-Type"}, config.AdditionalExposedHeaders...)

	allowedOrigins := make([]*url.URL, 0, len(config.AdditionalAllowedOrigins))
	for _, origin := range config.AdditionalAllowedOrigins {
		parsed, err := url.Parse(origin)
		if err != nil {
			continue
		}
		allowedOrigins = append(allowedOrigins, parsed)
	}

	return cors.New(cors.Options{
		AllowOriginFunc:  allowOrigin(allowedOrigins),
		AllowCredentials: true,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowedMethods: []string{
			"OPTIONS",
			"HEAD",
			"GET",
			"PUT",
			"POST",
			"DELETE",
		},
	})
}

func allowOrigin(allowedOrigins []*url.URL) func(origin string) bool {
	return func(origin string) bool {
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}

		host := parsed.Hostname()
		if host == "" {
			return false
		}

		// Allow localhost regardless of port or scheme.
		if host == "localhost" {
			return true
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return true
		}

		// Allow an origin that matches the scheme, host, and port of
		// an allowed origin.
		for _, allowed := range allowedOrigins {
			if allowed.Scheme == parsed.Scheme &&
				allowed.Hostname() == host &&
				allowed.Port() == parsed.Port() {
				return true
			}
		}

		return false
	}
}

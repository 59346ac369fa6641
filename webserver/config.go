// Package webserver serves the virtual filesystem to the live preview.
//
// A Router answers GET requests under /<route>/ by resolving the stripped
// path against a livefs.FileReader and converting the result, including
// every failure, into an Envelope. Routers and other handlers compose into
// a Chain that plugs into net/http.
package webserver

import (
	"net/url"
	"strings"
)

// DefaultRoute is the route used when the query string names none.
const DefaultRoute = "fs"

// Output formats understood by ParseConfig.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// Config is the route configuration of one server instance. It is parsed
// once at startup and never mutated.
type Config struct {
	// Route is the URL prefix without leading or trailing slashes.
	Route string
	// DisableIndexes turns directory listings into 404s.
	DisableIndexes bool
	// Debug enables per-request debug logging.
	Debug bool
	// DirectoryIndex names a file served in place of a directory listing
	// when present ("index.html"). Empty disables index files.
	DirectoryIndex string
	// Format selects the envelope formatter (json, html).
	Format string
}

// NormalizeRoute strips every leading and trailing slash from route, so
// "fs", "/fs", "fs/" and "/fs/" all yield "fs".
func NormalizeRoute(route string) string {
	return strings.Trim(route, "/")
}

// ParseConfig reads the route configuration from query parameters:
// route, disableIndexes (presence), debug ("true"), directoryIndex and
// format.
func ParseConfig(q url.Values) Config {
	cfg := Config{
		Route:          NormalizeRoute(q.Get("route")),
		DisableIndexes: q.Has("disableIndexes"),
		Debug:          q.Get("debug") == "true",
		DirectoryIndex: strings.Trim(q.Get("directoryIndex"), "/"),
		Format:         FormatJSON,
	}
	if cfg.Route == "" {
		cfg.Route = DefaultRoute
	}
	if q.Get("format") == FormatHTML {
		cfg.Format = FormatHTML
	}
	return cfg
}

// ParseQuery parses a raw query string ("route=vfs&debug=true") into a
// Config.
func ParseQuery(raw string) (Config, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(q), nil
}

// Prefix returns the URL path prefix the route answers under, "/fs".
func (c Config) Prefix() string {
	return "/" + NormalizeRoute(c.Route)
}

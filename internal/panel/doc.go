// Package panel serves the arbiter's read-only operator console.
//
// The console is a static page that polls /api/v1/health and
// /api/v1/metrics and renders lock, handler and dispatch counters. Its
// assets are embedded with go:embed; a directory on disk can replace them
// during development. Unknown paths fall back to index.html.
package panel

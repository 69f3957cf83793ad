package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web/*
var content embed.FS

const indexFile = "index.html"

// contentSecurityPolicy limits the console to its own assets and the API
// on the same origin.
const contentSecurityPolicy = "default-src 'self'; connect-src 'self'; frame-ancestors 'none'"

// Handler returns an http.Handler that serves the operator console.
//
// When dir names an existing directory, assets are read from disk so edits
// show up without a rebuild. Otherwise the embedded copy is used.
// Unknown paths without a file extension get index.html; unknown assets
// get 404. Panics if the embedded assets cannot be loaded (build error).
func Handler(dir string) http.Handler {
	return &console{files: assets(dir)}
}

func assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	sub, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: failed to load embedded console assets: %v", err))
	}
	return sub
}

type console struct {
	files fs.FS
}

func (c *console) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h := w.Header()
	h.Set("Cache-Control", "no-cache, must-revalidate")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", contentSecurityPolicy)

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || !c.isFile(name) {
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		name = indexFile
	}
	// ServeFileFS rejects any ".." in the raw path; name is already clean.
	r.URL.Path = "/" + name
	http.ServeFileFS(w, r, c.files, name)
}

func (c *console) isFile(name string) bool {
	info, err := fs.Stat(c.files, name)
	return err == nil && !info.IsDir()
}

// Package ui embeds the booth page: the session output surface plus the
// camera and lens selectors, driven by the HTTP API and the event stream.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed booth
var boothFS embed.FS

// Handler serves the booth page. Unknown paths without an extension fall back
// to index.html so the page can be bookmarked under any route.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(boothFS, "booth")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)
		if p != "/" {
			if stat, statErr := fs.Stat(fsys, strings.TrimPrefix(p, "/")); statErr == nil && !stat.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
			if strings.Contains(path.Base(p), ".") {
				http.NotFound(w, r)
				return
			}
		}
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		fileServer.ServeHTTP(w, r2)
	}), nil
}

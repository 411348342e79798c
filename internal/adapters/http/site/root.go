// Package site serves the embedded match screen.
package site

import (
	"context"
	"net/http"
)

// Register attaches the screen at / to mux. Its assets are served from the
// same file system, and any other path is a 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("/", http.FileServer(FS()))
}

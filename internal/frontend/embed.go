// Package frontend embeds the static dashboard and API document so the
// daemon binary is self-contained.
package frontend

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// Handler serves the embedded static assets.
func Handler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// OpenAPI returns the embedded API document.
func OpenAPI() []byte {
	data, err := staticFiles.ReadFile("static/openapi.yaml")
	if err != nil {
		return nil
	}
	return data
}

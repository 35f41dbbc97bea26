// Package web embeds the page templates, static assets, and Markdown content
// served by the front end.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html static content
var files embed.FS

// Templates holds the page templates under "templates".
var Templates fs.FS = files

// Static returns the static asset tree rooted at its own directory.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Demo returns the Markdown source of the demo page.
func Demo() ([]byte, error) {
	return fs.ReadFile(files, "content/demo.md")
}

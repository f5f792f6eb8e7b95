// Package static embeds the built dashboard bundle.
package static

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var dashboard embed.FS

// Assets returns the dashboard bundle rooted at dist, or nil when the bundle
// has no index.html.
func Assets() fs.FS {
	sub, err := fs.Sub(dashboard, "dist")
	if err != nil {
		return nil
	}
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil
	}
	return sub
}

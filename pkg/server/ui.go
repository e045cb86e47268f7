package server

import (
	"embed"
	"io/fs"
)

//go:embed static
var embeddedUI embed.FS

func staticAssets() (fs.FS, error) {
	return fs.Sub(embeddedUI, "static")
}

// Package web embeds the browser gauge served by `gauge serve`.
//
// The page subscribes to /events and drives its needle from sample events.
// Its buttons carry data-action attributes naming the server action they
// request, so the markup never depends on button labels.
//
// The dist/ directory is embedded at build time. When ./web/dist exists on
// the filesystem it is served instead, so the page can be edited without a
// rebuild.
package web

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed dist/*
var assets embed.FS

// GetAssets returns the page assets. When devPath names an existing
// directory it is served from disk; otherwise the embedded copy is used.
// An empty devPath checks "./web/dist".
func GetAssets(devPath string) fs.FS {
	if devPath == "" {
		devPath = "./web/dist"
	}

	if stat, err := os.Stat(devPath); err == nil && stat.IsDir() {
		return os.DirFS(devPath)
	}

	subFS, err := fs.Sub(assets, "dist")
	if err != nil {
		panic("failed to access embedded web assets: " + err.Error())
	}
	return subFS
}

// GetAssetsWithBase is GetAssets with the development directory resolved
// against baseDir.
func GetAssetsWithBase(baseDir string) fs.FS {
	return GetAssets(filepath.Join(baseDir, "web", "dist"))
}

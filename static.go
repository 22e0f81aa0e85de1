// Package visualiser bundles the browser UI of the k-means visualiser.
package visualiser

import "embed"

// StaticFiles holds index.html and the UI script under static/.
//
//go:embed static/*
var StaticFiles embed.FS

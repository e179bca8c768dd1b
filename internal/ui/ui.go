// Package ui embeds the built web frontend served by the API server.
package ui

import "embed"

//go:embed dist
var DistFS embed.FS

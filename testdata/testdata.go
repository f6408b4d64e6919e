// Package testdata embeds the fixtures served by the reference server.
package testdata

import "embed"

//go:embed *.json
var FS embed.FS

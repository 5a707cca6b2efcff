// Package templates embeds the default workspace configuration and sample fleet snapshot.
package templates

import "embed"

//go:embed config.yaml fleet.yaml
var FS embed.FS

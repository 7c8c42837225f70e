// Package po embeds the translations of the project.
package po

import "embed"

// Files containing po files
//
//go:embed *.po
var Files embed.FS

//go:build debianvendoring

// Package sshdconf only pins the tools needed when building the distribution package, so that
// they are vendored with the sources. Translations are compiled with compile-mo.
package sshdconf

import (
	_ "github.com/ubuntu/go-i18n/cmd/compile-mo"
)

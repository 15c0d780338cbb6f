// Package whatudoing provides embedded assets for the whatudoing daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The daemon copies this file to the data directory
// on first run so operators have a commented template to edit.
package whatudoing

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. Its values mirror [internal/config.DefaultConfig]; the TOML
// form carries the comments.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

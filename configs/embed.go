// Package configs provides the embedded configuration template for axon.
//
// The template is embedded at build time with go:embed so it ships in every
// distribution of the binary. 'axon config init' writes it to
// $XDG_CONFIG_HOME/axon/config.yaml (or ~/.config/axon/config.yaml).
//
// Configuration precedence (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/axon/config.yaml)
//  3. Environment variables (AXON_*, TEI_URL, QDRANT_URL, QDRANT_COLLECTION)
package configs

import _ "embed"

// UserConfigTemplate is the commented starter configuration written by
// 'axon config init'.
//
//go:embed config.example.yaml
var UserConfigTemplate string

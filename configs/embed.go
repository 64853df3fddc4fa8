// Package configs embeds the configuration template written by
// "ragpipe config init".
package configs

import _ "embed"

// ConfigTemplate documents every key with its default value.
//
//go:embed config.example.yaml
var ConfigTemplate string

// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// which keeps credentials such as handshake bearer tokens out of the file.
package config

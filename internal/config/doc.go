// Package config loads and validates client configuration from YAML, with
// ${VAR} environment expansion and sensible defaults.
package config

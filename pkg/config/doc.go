// Package config loads runtime configuration from GUILDKEEPER_* environment
// variables and the declared-positions YAML file.
package config

// Package config handles YAML configuration loading and validation for the
// UDP video service.
package config

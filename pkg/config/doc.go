// Package config loads the gateway configuration from a YAML file, applies the
// deployment environment variables on top and validates the result once at startup.
package config

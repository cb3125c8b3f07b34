// Package config loads the daemon's runtime settings from environment
// variables, an optional .env file, and an optional YAML file, in that
// order of precedence. Validation collects every missing or malformed
// value into one report so deployments fail fast with a complete
// checklist.
package config

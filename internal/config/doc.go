// Package config loads, validates, and defaults the vidsight TOML
// configuration. API credentials may come from the environment (optionally via
// a .env file) so they never need to live in the config file.
package config

// Package config loads runtime configuration for the fractal CLI from a
// config file and FRACTAL_-prefixed environment variables, and constructs
// the model backend the file selects. Library embedders typically bypass it
// and build core.Config and a provider.Backend directly.
package config

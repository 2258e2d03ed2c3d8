// Package config holds the runtime configuration of an engine session.
//
// Values come from built-in defaults, an optional config file (any format
// viper reads: YAML, TOML, JSON), and MADXBIND_* environment variables, in
// increasing order of precedence. Functional options passed to madx.Start
// override all of them.
package config

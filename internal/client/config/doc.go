// Package config defines the tokmesh-session client configuration.
//
// Configuration is read from a YAML file (default ~/.tokmesh/client.yaml)
// and TOKMESH_CLIENT_* environment variables, over built-in defaults.
// See confloader for the variable naming scheme.
package config

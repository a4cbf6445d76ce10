// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Explicit overrides (LoadMap, normally from command-line flags)
//  2. Environment variables
//  3. Configuration file (YAML)
//  4. Values already present in the target struct (defaults)
//
// Environment variables use the prefix followed by the key path, with
// "__" separating sections so that keys may contain single underscores:
//
//	TOKMESH_CLIENT_SESSION__REFRESH_THRESHOLD=2m  ->  session.refresh_threshold
//
// Watcher reports changes of a configuration file so callers can reload.
package confloader

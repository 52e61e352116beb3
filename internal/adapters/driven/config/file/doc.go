// Package file provides the TOML configuration store and maps its dot keys
// onto domain.Config.
package file

// Package config provides configuration structures and utilities for portscout.
// It defines the scan target, scan engine options, service detection
// settings, console and report output preferences, and the YAML
// configuration file that can supply all of them.
package config

// Package config defines the monitor settings and helpers to load, validate
// and save them in YAML format.
//
// Values may be overridden through PARKING_* environment variables, which are
// also read from an optional .env file. Validation fills defaults and rejects
// malformed settings before any frame is processed.
package config

// Package logx wraps zerolog behind a small Logger value with fixed-field
// derivation and a safe no-op zero value, so packages can accept a Logger
// without caring how sinks are configured.
package logx

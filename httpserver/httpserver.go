// Package httpserver defines the HTTP server used for the run control surface.
package httpserver

import "io"

// Provider serves until Close. Addr blocks until listening started and
// returns "" when it failed.
type Provider interface {
	Start() error
	Addr() string
	io.Closer
}

// Runner serves in the background and logs the terminal error.
type Runner interface {
	Run()
}

type RunableProvider interface {
	Provider
	Runner
}

// Package madxc binds the native MAD-X library through cgo and registers
// it as the "madx" engine backend.
//
// The driver is only compiled with the madx build tag and cgo enabled:
//
//	CGO_CFLAGS=-I/opt/madx/include CGO_LDFLAGS=-L/opt/madx/lib go build -tags madx ./...
//
// Without the tag the package is empty and only the "memory" backend is
// available. Importing it for side effects is always safe.
package madxc

// Package daemon supervises the long-running bot process. It wires the
// update loop, the staging sweep, and the keep-alive web server into a
// single lifecycle with flock-based locking to prevent multiple concurrent
// instances.
package daemon

// Package daemon hosts the background service: it enforces single-instance
// execution with a lock file, resets jobs interrupted by a previous run,
// starts the workflow manager, and serves the HTTP API the CLI talks to.
package daemon

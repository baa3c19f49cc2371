// Package api defines the HTTP payload types shared by the daemon server
// and the CLI client, plus the client itself.
package api

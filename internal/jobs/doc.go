// Package jobs persists conversion jobs and their history records in SQLite.
// The workflow manager owns live Job values; other components receive
// read-only snapshots.
package jobs

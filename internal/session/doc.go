// Package session manages authenticated source-service connections for
// workers: one cached, lazily revalidated handle per user, created by a
// pluggable Connector and serialized behind per-user locks.
package session

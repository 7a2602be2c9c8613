// Package database provides the PostgreSQL connection pool backing the
// frame recorder.
package database

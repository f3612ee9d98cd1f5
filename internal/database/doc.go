// Package database provides the SQLite video catalog.
//
// Each published file has exactly one row in the videos table, keyed by a
// random UUID and unique by storage file name. Rows are inserted by the
// ingest worker and deleted when the backing file disappears; they are
// never updated in place. Listing is newest first.
//
// The database uses WAL mode so streaming and listing requests can read
// while the ingest worker writes.
package database

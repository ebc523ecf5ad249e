// Package store persists the endpoint list of an htmlfwd client.
//
// FileStore keeps the list in a YAML file; PostgresStore keeps it in a
// PostgreSQL table. Both implement htmlfwd.SpecStore and are wired in
// with htmlfwd.WithStore.
package store

// Package store holds the controller's configuration state.
//
// Durable values live in a single bbolt file, one bucket per logical store
// (app-local and store-environments). Session values live in memory for the
// lifetime of the controller. Values are JSON documents; a Set is visible to
// the next Get immediately.
package store

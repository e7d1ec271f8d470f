// Package rtdb is a client for hierarchical realtime databases.
//
// The database is a single JSON tree. Locations in the tree are addressed by
// slash-separated paths and represented by a Ref. A Query narrows a location
// with an ordering, range bounds and limits. Both can be read once with Get,
// or observed with AddValueListener, which reports the current value and then
// every change until the returned Registration is removed.
//
// Storage, transport and change notification are provided by a Driver. See
// the memory, couch and firebase subpackages.
package rtdb

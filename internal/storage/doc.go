// Package storage persists the single session record of the client.
//
// A Store serializes records to JSON, optionally seals them, and writes
// them under one fixed key of a Backend. Backends are pluggable:
//
//   - MemoryBackend: in-process map, change events fan out to watchers
//   - FileBackend: one file per key, atomic rename, fsnotify change events
//   - BadgerBackend: embedded badger/v3 database
//   - RedisBackend: shared redis key with pub/sub change events
//
// Backends that implement Watcher let several processes sharing one store
// observe each other's writes. The Store turns raw backend notifications
// into decoded StoreChange values and drops echoes of its own writes.
//
// Store never panics and never returns backend errors to the session
// lifecycle: a failing backend degrades to "no persistence".
package storage

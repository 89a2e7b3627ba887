// Package connector holds the storage connector framework of Stratum.
//
// The sub-packages split the framework into the descriptor model, the
// runtime registry, and the bundled connector implementations:
//
//   - core: Defines ConnectorClass, the callback-table descriptor every
//     connector publishes, together with the shared argument and location
//     types the dispatch layer passes through to connector callbacks.
//
//   - registry: Tracks registered connector instances with reference
//     counting. An instance stays alive while containers, properties or
//     async requests hold references to it and terminates when the last
//     one is released.
//
//   - native: The default connector. Persists a container as a single
//     compressed JSON document on disk.
//
//   - memory: A process-wide in-memory connector used by tests and as a
//     discovery fallback when a path does not resolve to an on-disk
//     container.
//
//   - kv: A connector backed by an embedded Badger key-value store.
//
// Connectors announce themselves through pkg/plugin at init time; callers
// go through pkg/dispatch rather than invoking callback tables directly.
package connector
